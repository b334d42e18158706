package expenses

type ListExpensesQuery struct {
	Limit     int    `query:"limit" json:"limit,omitempty" default:"50" validate:"min=1,max=500"`
	Offset    int    `query:"offset" json:"offset,omitempty" validate:"min=0"`
	CompanyID string `query:"company_id" json:"company_id" validate:"required,company_id"`
}

type RetrieveExpenseQuery struct {
	CompanyID string `query:"company_id" json:"company_id" validate:"required,company_id"`
}

type RefreshExpensePayload struct {
	CompanyID string `json:"company_id" mod:"trim" validate:"required,company_id"`
}
