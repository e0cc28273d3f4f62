package adapters

import (
	"context"
	"encoding/json"
	"io"

	"github.com/chenyu-w/seasync/pkg/types"
	"github.com/olivere/elastic/v7"
	"github.com/pkg/errors"
)

// ElasticSearchAdapter es 表存储适配器
// 索引作为表、文档作为行，文档 _id 即行标识
type ElasticSearchAdapter struct {
	cli *elastic.Client
}

func NewElasticSearchAdapter(conf *AdapterConfig) (types.TableAdapter, error) {
	if conf.ServerURL == "" {
		return nil, errors.New("es adapter requires server_url")
	}

	options := []elastic.ClientOptionFunc{
		elastic.SetURL(conf.ServerURL), elastic.SetSniff(false),
	}
	if conf.Username != "" {
		options = append(options, elastic.SetBasicAuth(conf.Username, conf.Password))
	}

	cli, err := elastic.NewClient(options...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &ElasticSearchAdapter{cli: cli}, nil
}

// GetRows 滚动读取整个索引，es 没有视图概念，view 参数忽略
func (a *ElasticSearchAdapter) GetRows(ctx context.Context, table, view string) ([]types.Row, error) {
	var rows []types.Row
	scroll := a.cli.Scroll(table).Size(1000)
	defer scroll.Clear(ctx)

	for {
		result, err := scroll.Do(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if elastic.IsNotFound(err) {
				return nil, nil
			}
			return nil, errors.WithStack(err)
		}

		for _, hit := range result.Hits.Hits {
			row := make(types.Row)
			if err := json.Unmarshal(hit.Source, &row); err != nil {
				return nil, errors.WithStack(err)
			}
			row[types.RowIDField] = hit.Id
			rows = append(rows, row)
		}
	}

	return rows, nil
}

func (a *ElasticSearchAdapter) AppendRow(ctx context.Context, table string, data types.RowUpdate) error {
	_, err := a.cli.Index().Index(table).BodyJson(data).Do(ctx)

	return errors.WithStack(err)
}

func (a *ElasticSearchAdapter) ModifyRows(ctx context.Context, table string,
	rows []types.Row, updates []types.RowUpdate) error {

	if len(rows) != len(updates) {
		return errors.Errorf("rows and updates must pair by position: %d != %d", len(rows), len(updates))
	}
	if len(rows) == 0 {
		return nil
	}

	bulk := a.cli.Bulk()
	for i, row := range rows {
		bulk.Add(elastic.NewBulkUpdateRequest().Index(table).Id(row.ID()).Doc(updates[i]))
	}

	response, err := bulk.Do(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, failed := range response.Failed() {
		if failed.Error != nil && failed.Error.Type == "document_missing_exception" {
			// 文档已不存在，返回统一的失效信号供执行器重匹配
			return errors.Wrapf(types.ErrRowIDsNotExist, "index %s id %s", table, failed.Id)
		}
	}
	if len(response.Failed()) > 0 {
		return errors.Errorf("bulk update failed: %d/%d items", len(response.Failed()), len(rows))
	}

	return nil
}

func (a *ElasticSearchAdapter) BatchDeleteRows(ctx context.Context, table string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}

	bulk := a.cli.Bulk()
	for _, id := range rowIDs {
		bulk.Add(elastic.NewBulkDeleteRequest().Index(table).Id(id))
	}

	response, err := bulk.Do(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	var failedCount int
	for _, failed := range response.Failed() {
		// 已被并发删除的文档不算失败
		if failed.Status != 404 {
			failedCount++
		}
	}
	if failedCount > 0 {
		return errors.Errorf("bulk delete failed: %d/%d items", failedCount, len(rowIDs))
	}

	return nil
}

func (a *ElasticSearchAdapter) TestConnection(ctx context.Context) error {
	_, err := a.cli.ClusterHealth().Do(ctx)

	return errors.WithStack(err)
}
