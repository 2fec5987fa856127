package api

type (
	// ConditionOperator names a comparison evaluated by branches and routers
	ConditionOperator string

	// Condition is a single comparison. Values are resolved templates
	Condition struct {
		FirstValue    any               `json:"firstValue"`
		SecondValue   any               `json:"secondValue,omitempty"`
		Operator      ConditionOperator `json:"operator"`
		CaseSensitive bool              `json:"caseSensitive,omitempty"`
	}

	// RouterExecutionType selects how many matching branches run
	RouterExecutionType string

	// RouterBranchType marks a branch as conditional or the fallback
	RouterBranchType string

	// RouterSettings configures a ROUTER action
	RouterSettings struct {
		ExecutionType RouterExecutionType `json:"executionType"`
		Branches      []RouterBranch      `json:"branches"`
	}

	// RouterBranch is one route. Conditions are OR'd groups of AND'd
	// comparisons and are ignored for the fallback branch
	RouterBranch struct {
		BranchName string           `json:"branchName"`
		BranchType RouterBranchType `json:"branchType"`
		Conditions [][]Condition    `json:"conditions"`
	}
)

const (
	TextContains         ConditionOperator = "TEXT_CONTAINS"
	TextDoesNotContain   ConditionOperator = "TEXT_DOES_NOT_CONTAIN"
	TextExactlyMatches   ConditionOperator = "TEXT_EXACTLY_MATCHES"
	TextDoesNotExactly   ConditionOperator = "TEXT_DOES_NOT_EXACTLY_MATCH"
	TextStartsWith       ConditionOperator = "TEXT_STARTS_WITH"
	TextDoesNotStartWith ConditionOperator = "TEXT_DOES_NOT_START_WITH"
	TextEndsWith         ConditionOperator = "TEXT_ENDS_WITH"
	TextDoesNotEndWith   ConditionOperator = "TEXT_DOES_NOT_END_WITH"
	NumberIsGreaterThan  ConditionOperator = "NUMBER_IS_GREATER_THAN"
	NumberIsLessThan     ConditionOperator = "NUMBER_IS_LESS_THAN"
	NumberIsEqualTo      ConditionOperator = "NUMBER_IS_EQUAL_TO"
	BooleanIsTrue        ConditionOperator = "BOOLEAN_IS_TRUE"
	BooleanIsFalse       ConditionOperator = "BOOLEAN_IS_FALSE"
	DateIsBefore         ConditionOperator = "DATE_IS_BEFORE"
	DateIsEqual          ConditionOperator = "DATE_IS_EQUAL"
	DateIsAfter          ConditionOperator = "DATE_IS_AFTER"
	ListContains         ConditionOperator = "LIST_CONTAINS"
	ListDoesNotContain   ConditionOperator = "LIST_DOES_NOT_CONTAIN"
	ListIsEmpty          ConditionOperator = "LIST_IS_EMPTY"
	ListIsNotEmpty       ConditionOperator = "LIST_IS_NOT_EMPTY"
	Exists               ConditionOperator = "EXISTS"
	DoesNotExist         ConditionOperator = "DOES_NOT_EXIST"
)

const (
	RouterExecuteFirstMatch RouterExecutionType = "EXECUTE_FIRST_MATCH"
	RouterExecuteAllMatch   RouterExecutionType = "EXECUTE_ALL_MATCH"

	RouterBranchCondition RouterBranchType = "CONDITION"
	RouterBranchFallback  RouterBranchType = "FALLBACK"
)

// IsFallback reports whether the branch is the router's fallback route
func (b *RouterBranch) IsFallback() bool {
	return b.BranchType == RouterBranchFallback
}
