package admin

import (
	"github.com/roach88/orgadmin/internal/catalog"
	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/model"
)

// Column, search and filter paths of the change lists, resolved from field
// references on the built-in models when the package loads. An unknown
// attribute panics.
var (
	PersonListDisplay = paths(catalog.NaturalPerson,
		[]string{"person_id"}, []string{"name"}, []string{"identity"},
		[]string{"stu_grade"}, []string{"stu_class"}, []string{"yqpoint"})
	PersonSearchFields = paths(catalog.NaturalPerson,
		[]string{"person_id", "username"}, []string{"name"})
	PersonListFilter = paths(catalog.NaturalPerson,
		[]string{"status"}, []string{"identity"}, []string{"stu_grade"}, []string{"stu_class"})

	OrganizationListDisplay = paths(catalog.Organization,
		[]string{"organization_id"}, []string{"oname"}, []string{"otype"})
	OrganizationSearchFields = paths(catalog.Organization,
		[]string{"organization_id", "username"}, []string{"oname"}, []string{"otype", "otype_name"})
	OrganizationListFilter = paths(catalog.Organization,
		[]string{"otype"}, []string{"activated"})

	PositionListDisplay = paths(catalog.Position,
		[]string{"person"}, []string{"org"}, []string{"pos"}, []string{"year"},
		[]string{"semester"}, []string{"is_admin"})
	PositionSearchFields = paths(catalog.Position,
		[]string{"person", "name"}, []string{"org", "oname"}, []string{"org", "otype", "otype_name"})
	PositionListFilter = paths(catalog.Position,
		[]string{"year"}, []string{"semester"}, []string{"is_admin"}, []string{"org", "otype"}, []string{"pos"})

	TransferSearchFields = paths(catalog.TransferRecord,
		[]string{"id"}, []string{"proposer", "username"}, []string{"recipient", "username"})
)

// PositionNameColumn is the rank title NameRanks adds to position rows.
const PositionNameColumn = "pos_name"

func paths(root string, chains ...[]string) []string {
	reg := catalog.MustDefault()
	out := make([]string, len(chains))
	for i, chain := range chains {
		refs, err := reg.Refs(root, chain...)
		if err != nil {
			panic(err)
		}
		out[i] = fieldref.MustPath(refs...)
	}
	return out
}

// pathOf resolves a chain of attribute names on root to a query path.
func pathOf(reg *model.Registry, root string, names ...string) (string, error) {
	refs, err := reg.Refs(root, names...)
	if err != nil {
		return "", err
	}
	return fieldref.PathOf(refs...)
}
