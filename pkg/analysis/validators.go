package analysis

import "github.com/cosmoesg/cosmo/pkg/models"

type UserContextPayload struct {
	EUTaxonomySectorIDs   []string `json:"eu_taxonomy_sector_ids" validate:"max=50"`
	EUTaxonomySectorNames []string `json:"eu_taxonomy_sector_names" validate:"max=50"`
	EUTaxonomyActivities  []string `json:"eu_taxonomy_activities" validate:"max=100"`
	CompanyName           string   `json:"company_name" validate:"max=200"`
}

func (p UserContextPayload) toModel() models.AnalysisUserContext {
	uc := models.AnalysisUserContext{
		EUTaxonomySectorIDs:   p.EUTaxonomySectorIDs,
		EUTaxonomySectorNames: p.EUTaxonomySectorNames,
		EUTaxonomyActivities:  p.EUTaxonomyActivities,
		CompanyName:           p.CompanyName,
	}
	if uc.EUTaxonomySectorIDs == nil {
		uc.EUTaxonomySectorIDs = []string{}
	}
	if uc.EUTaxonomySectorNames == nil {
		uc.EUTaxonomySectorNames = []string{}
	}
	if uc.EUTaxonomyActivities == nil {
		uc.EUTaxonomyActivities = []string{}
	}
	return uc
}

type CreateAnalysisPayload struct {
	CompanyID   string             `json:"company_id" mod:"trim" validate:"required,company_id"`
	ExpenseIDs  []string           `json:"expense_ids" validate:"omitempty,max=500,dive,required"`
	UserContext UserContextPayload `json:"user_context"`
}

type ListAnalysesQuery struct {
	Limit     int    `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset    int    `query:"offset" json:"offset,omitempty" validate:"min=0"`
	CompanyID string `query:"company_id" json:"company_id" validate:"required,company_id"`
}
