package types

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

type (
	// TableAdapter 远端表存储适配器
	// ModifyRows 的 rows 和 updates 按位置配对，长度必须一致
	TableAdapter interface {
		GetRows(ctx context.Context, table, view string) ([]Row, error)
		AppendRow(ctx context.Context, table string, data RowUpdate) error
		ModifyRows(ctx context.Context, table string, rows []Row, updates []RowUpdate) error
		BatchDeleteRows(ctx context.Context, table string, rowIDs []string) error
		TestConnection(ctx context.Context) error
	}

	// RunRequest 一次同步运行请求
	RunRequest struct {
		RulesFile string      `json:"rules_file,omitempty"` // 为空时使用服务默认规则文件
		Source    interface{} `json:"-"`                    // 原始消息，触发器回执使用
	}

	// Trigger 同步运行请求来源
	Trigger interface {
		Read() (*RunRequest, error)
		Complete(req *RunRequest) error
		Close() error
	}
)

// ErrRowIDsNotExist 远端行标识失效，整个运行期间唯一可检测的冲突信号
var ErrRowIDsNotExist = errors.New("row ids not exist")

// IsRowIDsNotExist 判断错误是否为行标识失效
// 远端返回的错误信息里会带有固定签名，按子串匹配
func IsRowIDsNotExist(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrRowIDsNotExist) ||
		strings.Contains(err.Error(), ErrRowIDsNotExist.Error())
}
