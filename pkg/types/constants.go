package types

const OperatorEq = "="              // 等于
const OperatorNe = "!="             // 不等于
const OperatorLte = "<="            // 小于等于
const OperatorGte = ">="            // 大于等于
const OperatorLt = "<"              // 小于
const OperatorGt = ">"              // 大于
const OperatorContains = "contains" // 包含 (任一逗号分隔关键字命中即通过)
const OperatorContainsCN = "包含"

const AggregationSum = "sum"                              // 求和
const AggregationLatest = "latest"                        // 按时间取最新记录
const AggregationBroadcast = "broadcast"                  // 广播，同一组源数据应用到所有目标行
const AggregationFirstPart = "firstPart"                  // 取首个分隔符之前的内容
const AggregationConditionalConcat = "conditional_concat" // 条件拼接多个字段/常量
const AggregationYearIf = "year_if"                       // 提取年份
const AggregationMonthIf = "month_if"                     // 提取月份 (N月)
const AggregationDateYearMonth = "date_year_month"        // 提取年月 (YYYYMM)
const AggregationMathExpression = "math_expression"       // 数学表达式计算
const AggregationStringReplace = "string_replace"         // 字符串替换

const OperationDeleteAll = "delete_all" // 删除目标表所有行
const OperationClear = "clear"          // 清空目标字段
const OperationUpdate = "update"        // 批量更新
const OperationInsert = "insert"        // 批量插入

const SortOrderAsc = "asc"
const SortOrderDesc = "desc"

const AllGroupKey = "__all__"     // 未配置主键时的单一分组键
const CompositeKeySeparator = "|" // 组合主键分隔符

const DictionaryLatestConfigKey = "latest_aggregation_config" // 数据字典内 latest 聚合默认配置键

const AdapterTypeSeaTable = "seatable" // SeaTable REST 适配器
const AdapterTypeMysql = "mysql"       // mysql 适配器
const AdapterTypeElasticSearch = "es"  // es 适配器

const TriggerTypeWeb = "web"     // web 类型触发器
const TriggerTypeKafka = "kafka" // kafka 类型触发器
