package core

import (
	"regexp"
	"strings"
	"time"

	"github.com/chenyu-w/seasync/pkg/types"
)

// conditionEvaluator 过滤条件求值器
// 无副作用，只依赖传入的行数据和数据字典
type conditionEvaluator struct {
	dict types.DataDictionary
}

// 形如 {报表截止时间} 的数据字典变量，大括号内不允许出现 : . =
var variablePattern = regexp.MustCompile(`^\{([^:.=]+)\}$`)

// 包含条件的关键字分隔符，半角或全角逗号
var containsTokenPattern = regexp.MustCompile(`[,\x{ff0c}]`)

// Evaluate 判断行是否满足全部条件 (and)，空条件列表恒为真
func (c *conditionEvaluator) Evaluate(row types.Row, conditions []types.Condition) bool {
	for _, condition := range conditions {
		fieldValue := row[condition.Field]
		compValue := c.resolveVariable(condition.Value)
		if !compareWithOperator(fieldValue, compValue, condition.Op) {
			return false
		}
	}

	return true
}

// Matches 满足过滤条件且不命中排除条件
func (c *conditionEvaluator) Matches(row types.Row, include, exclude []types.Condition) bool {
	if !c.Evaluate(row, include) {
		return false
	}
	if len(exclude) > 0 && c.Evaluate(row, exclude) {
		return false
	}

	return true
}

// resolveVariable 解析数据字典变量，非变量引用原样返回
func (c *conditionEvaluator) resolveVariable(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}

	matches := variablePattern.FindStringSubmatch(s)
	if len(matches) == 0 {
		return value
	}
	if resolved, exists := c.dict[matches[1]]; exists {
		return resolved
	}

	return value
}

// compareWithOperator 按操作符比较，优先按日期，其次数值，最后字符串
func compareWithOperator(fieldValue, compValue interface{}, op string) bool {
	if fvDate, ok := types.ParseDate(fieldValue); ok {
		if cvDate, ok := types.ParseDate(compValue); ok {
			return compareTime(fvDate, cvDate, op)
		}
	}

	if fvNum, ok := types.ToNumber(fieldValue); ok {
		if cvNum, ok := types.ToNumber(compValue); ok {
			return compareFloat(fvNum, cvNum, op)
		}
	}

	return compareString(fieldValue, compValue, op)
}

func compareTime(first, two time.Time, op string) bool {
	switch op {
	case types.OperatorEq:
		return first.Equal(two)
	case types.OperatorNe:
		return !first.Equal(two)
	case types.OperatorLte:
		return !first.After(two)
	case types.OperatorGte:
		return !first.Before(two)
	case types.OperatorLt:
		return first.Before(two)
	case types.OperatorGt:
		return first.After(two)
	}

	// 未知操作符，默认通过
	return true
}

func compareFloat(first, two float64, op string) bool {
	switch op {
	case types.OperatorEq:
		return first == two
	case types.OperatorNe:
		return first != two
	case types.OperatorLte:
		return first <= two
	case types.OperatorGte:
		return first >= two
	case types.OperatorLt:
		return first < two
	case types.OperatorGt:
		return first > two
	}

	return true
}

func compareString(fieldValue, compValue interface{}, op string) bool {
	fvStr, cvStr := types.ToString(fieldValue), types.ToString(compValue)

	switch op {
	case types.OperatorEq:
		// 空值特殊处理: 条件值为空时，字段缺失或为空都算相等
		if cvStr == "" && (fieldValue == nil || fvStr == "") {
			return true
		}
		return fvStr == cvStr
	case types.OperatorNe:
		if cvStr == "" && (fieldValue == nil || fvStr == "") {
			return false
		}
		return fvStr != cvStr
	case types.OperatorContains, types.OperatorContainsCN:
		return containsMatch(fieldValue, fvStr, cvStr)
	case types.OperatorLte:
		return fvStr <= cvStr
	case types.OperatorGte:
		return fvStr >= cvStr
	case types.OperatorLt:
		return fvStr < cvStr
	case types.OperatorGt:
		return fvStr > cvStr
	}

	return true
}

// containsMatch 包含匹配
// 条件值按逗号 (半角或全角) 拆分为多个关键字，任一命中即通过；
// 多选字段值为数组时逐个元素判断
func containsMatch(fieldValue interface{}, fvStr, cvStr string) bool {
	var tokens []string
	for _, token := range containsTokenPattern.Split(cvStr, -1) {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		if cvStr = strings.TrimSpace(cvStr); cvStr == "" {
			return false
		}
		tokens = []string{cvStr}
	}

	if elements, ok := fieldValue.([]interface{}); ok {
		for _, element := range elements {
			elemStr := types.ToString(element)
			for _, token := range tokens {
				if strings.Contains(elemStr, token) {
					return true
				}
			}
		}
		return false
	}

	for _, token := range tokens {
		if strings.Contains(fvStr, token) {
			return true
		}
	}

	return false
}
