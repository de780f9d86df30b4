package fount

import (
	"github.com/Sternrassler/fount-client/pkg/query"
	"github.com/samber/lo"
)

// Fount endpoints.
const (
	AudienceGroups    = "audience-groups"
	Audiences         = "audiences"
	BrandMetricGroups = "brand-metric-groups"
	BrandMetrics      = "brand-metrics"
	Brands            = "brands"
	BrandscapeData    = "brandscape-data"
	Categories        = "categories"
	Cities            = "cities"
	Collections       = "collections"
	Companies         = "companies"
	Countries         = "countries"
	Regions           = "regions"
	Sectors           = "sectors"
	Studies           = "studies"
	Years             = "years"
)

// Endpoints lists every known endpoint.
var Endpoints = []string{
	AudienceGroups, Audiences, BrandMetricGroups, BrandMetrics, Brands,
	BrandscapeData, Categories, Cities, Collections, Companies,
	Countries, Regions, Sectors, Studies, Years,
}

// IsEndpoint reports whether name is a known endpoint.
func IsEndpoint(name string) bool {
	return lo.Contains(Endpoints, name)
}

var defaultIncludes = map[string][]string{
	BrandscapeData: {"study", "brand", "category", "audience"},
	Categories:     {"sector"},
}

// DefaultIncludes returns the resources embedded by default for endpoint.
func DefaultIncludes(endpoint string) []string {
	return append([]string(nil), defaultIncludes[endpoint]...)
}

// BrandscapeRule rejects brandscape-data queries that are too broad: they
// need brands, a brand name, studies, or a country together with a year.
var BrandscapeRule = query.RequireCombination(BrandscapeData,
	[]string{"brands"},
	[]string{"brand_name"},
	[]string{"studies"},
	[]string{"countries|country_code", "years|year_number"},
)

// DefaultRules returns the query rules a Client applies unless configured otherwise.
func DefaultRules() []query.Rule {
	return []query.Rule{BrandscapeRule}
}

// FlattenPrefix returns the prefix for nested columns that clash with top-level ones.
// brandscape-data has brand_name next to the included brand.
func FlattenPrefix(endpoint string) string {
	if endpoint == BrandscapeData {
		return "global"
	}
	return ""
}
