package adapters

import (
	"context"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MysqlAdapter mysql 表存储适配器
// 每张同步表对应一张带自增 id 主键的 sql 表，_id 由 id 列合成
type MysqlAdapter struct {
	db *gorm.DB
}

func NewMysqlAdapter(conf *AdapterConfig) (types.TableAdapter, error) {
	if conf.DSN == "" {
		return nil, errors.New("mysql adapter requires dsn")
	}

	db, err := gorm.Open(mysql.Open(conf.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &MysqlAdapter{db: db}, nil
}

// GetRows mysql 没有视图概念，view 参数忽略
func (a *MysqlAdapter) GetRows(ctx context.Context, table, view string) ([]types.Row, error) {
	var results []map[string]interface{}
	tx := a.db.WithContext(ctx).Table(table).Find(&results)
	if tx.Error != nil {
		return nil, errors.WithStack(tx.Error)
	}

	rows := make([]types.Row, len(results))
	for i, result := range results {
		row := types.Row(result)
		if id, ok := result["id"]; ok {
			row[types.RowIDField] = types.ToString(id)
		}
		rows[i] = row
	}

	return rows, nil
}

func (a *MysqlAdapter) AppendRow(ctx context.Context, table string, data types.RowUpdate) error {
	tx := a.db.WithContext(ctx).Table(table).Create(map[string]interface{}(data))

	return errors.WithStack(tx.Error)
}

func (a *MysqlAdapter) ModifyRows(ctx context.Context, table string,
	rows []types.Row, updates []types.RowUpdate) error {

	if len(rows) != len(updates) {
		return errors.Errorf("rows and updates must pair by position: %d != %d", len(rows), len(updates))
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID()
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先校验行是否都还存在，缺失时返回统一的失效信号供执行器重匹配
		var count int64
		if err := tx.Table(table).Where("id IN ?", ids).Count(&count).Error; err != nil {
			return errors.WithStack(err)
		}
		if count != int64(len(ids)) {
			return errors.Wrapf(types.ErrRowIDsNotExist, "table %s: %d/%d rows found",
				table, count, len(ids))
		}

		for i, id := range ids {
			result := tx.Table(table).Where("id = ?", id).
				Updates(map[string]interface{}(updates[i]))
			if result.Error != nil {
				return errors.WithStack(result.Error)
			}
		}

		return nil
	})
}

func (a *MysqlAdapter) BatchDeleteRows(ctx context.Context, table string, rowIDs []string) error {
	tx := a.db.WithContext(ctx).Table(table).Where("id IN ?", rowIDs).Delete(nil)

	return errors.WithStack(tx.Error)
}

func (a *MysqlAdapter) TestConnection(ctx context.Context) error {
	db, err := a.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(db.PingContext(ctx))
}
