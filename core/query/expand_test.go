package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand_Collection(t *testing.T) {
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Book },
		func(nested *Builder[book]) {
			nested.Select(func(bk *book) any { return &bk.Title }).
				Where(func(bk *book) any { return &bk.Price }, ComparisonOperatorGreaterThan, 10.0)
		})

	expr, err := b.Build()
	assert.NoError(t, err)
	assert.Len(t, expr.Links, 1)

	link := expr.Links[0]
	assert.Equal(t, "publisher", link.Source)
	assert.Equal(t, "book", link.Target)
	assert.Equal(t, "bookid", link.From)
	assert.Equal(t, "bookid", link.To)
	assert.Equal(t, JoinTypeInner, link.Type)
	assert.Equal(t, "book", link.Alias)

	assert.False(t, link.Columns.AllColumns)
	assert.Equal(t, []string{"title"}, link.Columns.Columns)
	assert.NotNil(t, link.Criteria)
	assert.Len(t, link.Criteria.Filters, 1)
	cond := link.Criteria.Filters[0].Conditions[0]
	assert.Equal(t, "price", cond.Attribute)
	assert.Equal(t, ComparisonOperatorGreaterThan, cond.Operator)
	assert.Equal(t, []any{10.0}, cond.Values)
}

func TestExpand_UnconfiguredChild(t *testing.T) {
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Book },
		func(nested *Builder[book]) {})

	expr, err := b.Build()
	assert.NoError(t, err)
	link := expr.Links[0]
	assert.True(t, link.Columns.AllColumns)
	assert.Nil(t, link.Criteria)
	assert.Empty(t, link.Links)
}

func TestExpand_RelationshipAnnotation(t *testing.T) {
	// Imprints declares relationship=publisher, so the join attributes come
	// from the annotation while the alias stays the member name.
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Imprints },
		func(nested *Builder[imprint]) {})

	expr, err := b.Build()
	assert.NoError(t, err)
	link := expr.Links[0]
	assert.Equal(t, "imprint", link.Target)
	assert.Equal(t, "publisherid", link.From)
	assert.Equal(t, "publisherid", link.To)
	assert.Equal(t, "imprints", link.Alias)
}

func TestExpand_SelfReferencingLookup(t *testing.T) {
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Parent },
		func(nested *Builder[publisher]) {})

	expr, err := b.Build()
	assert.NoError(t, err)
	link := expr.Links[0]
	assert.Equal(t, "publisher", link.Target)
	assert.Equal(t, "parentid", link.From)
	assert.Equal(t, "parentid", link.To)
	assert.Equal(t, "parent", link.Alias)
}

func TestExpand_CrossTypeLookup(t *testing.T) {
	t.Run("conventional foreign key", func(t *testing.T) {
		b := NewBuilder[book]()
		Expand(b,
			func(bk *book) any { return &bk.Issuer },
			func(nested *Builder[publisher]) {})

		expr, err := b.Build()
		assert.NoError(t, err)
		link := expr.Links[0]
		assert.Equal(t, "book", link.Source)
		assert.Equal(t, "publisher", link.Target)
		assert.Equal(t, "issuerid", link.From)
		assert.Equal(t, "publisherid", link.To, "the to side is the target's id attribute")
	})

	t.Run("declared from attribute", func(t *testing.T) {
		b := NewBuilder[book]()
		Expand(b,
			func(bk *book) any { return &bk.Seller },
			func(nested *Builder[publisher]) {})

		expr, err := b.Build()
		assert.NoError(t, err)
		link := expr.Links[0]
		assert.Equal(t, "sellerref", link.From)
		assert.Equal(t, "publisherid", link.To)
	})
}

func TestExpand_ReferenceAttribute(t *testing.T) {
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Owner },
		func(nested *Builder[person]) {})

	expr, err := b.Build()
	assert.NoError(t, err)
	link := expr.Links[0]
	assert.Equal(t, "person", link.Target)
	assert.Equal(t, "owner", link.From)
	assert.Equal(t, "personid", link.To)
}

func TestExpand_NestedDepth(t *testing.T) {
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Book },
		func(nested *Builder[book]) {
			Expand(nested,
				func(bk *book) any { return &bk.Issuer },
				func(deep *Builder[publisher]) {
					deep.Where(func(p *publisher) any { return &p.Active }, ComparisonOperatorEqual, true)
				})
		})

	expr, err := b.Build()
	assert.NoError(t, err)
	assert.Len(t, expr.Links, 1)

	outer := expr.Links[0]
	assert.Nil(t, outer.Criteria, "the child's filters must not leak upward")
	assert.Len(t, outer.Links, 1)

	inner := outer.Links[0]
	assert.Equal(t, "book", inner.Source)
	assert.Equal(t, "publisher", inner.Target)
	assert.NotNil(t, inner.Criteria)
	assert.Equal(t, "active", inner.Criteria.Filters[0].Conditions[0].Attribute)
}

func TestExpand_UnresolvableAccessorSkipped(t *testing.T) {
	configured := false
	b := NewBuilder[publisher]()
	Expand(b,
		func(p *publisher) any { return &p.Name },
		func(nested *Builder[book]) { configured = true })

	expr, err := b.Build()
	assert.NoError(t, err)
	assert.Empty(t, expr.Links)
	assert.False(t, configured, "the configure callback must not run for a plain attribute")
}

func TestExpand_NilArguments(t *testing.T) {
	t.Run("nil accessor", func(t *testing.T) {
		b := NewBuilder[publisher]()
		Expand[publisher, book](b, nil, func(nested *Builder[book]) {})
		_, err := b.Build()
		assert.ErrorContains(t, err, "accessor cannot be nil")
	})

	t.Run("nil configure", func(t *testing.T) {
		b := NewBuilder[publisher]()
		Expand[publisher, book](b, func(p *publisher) any { return &p.Book }, nil)
		_, err := b.Build()
		assert.ErrorContains(t, err, "configure function cannot be nil")
	})
}

func TestExpand_ChildRestrictions(t *testing.T) {
	t.Run("child ordering is rejected", func(t *testing.T) {
		b := NewBuilder[publisher]()
		Expand(b,
			func(p *publisher) any { return &p.Book },
			func(nested *Builder[book]) {
				nested.OrderBy(func(bk *book) any { return &bk.Title })
			})
		_, err := b.Build()
		assert.ErrorContains(t, err, `expansion "book"`)
		assert.ErrorContains(t, err, "ordering applies to the root query only")
	})

	t.Run("child top is rejected", func(t *testing.T) {
		b := NewBuilder[publisher]()
		Expand(b,
			func(p *publisher) any { return &p.Book },
			func(nested *Builder[book]) {
				nested.Top(1)
			})
		_, err := b.Build()
		assert.ErrorContains(t, err, "top applies to the root query only")
	})
}

func TestExpandRelationship(t *testing.T) {
	t.Run("known member name", func(t *testing.T) {
		b := NewBuilder[publisher]()
		ExpandRelationship(b, "IMPRINTS", func(nested *Builder[imprint]) {})

		expr, err := b.Build()
		assert.NoError(t, err)
		link := expr.Links[0]
		assert.Equal(t, "publisherid", link.From, "the member's relationship annotation applies")
		assert.Equal(t, "publisherid", link.To)
		assert.Equal(t, "imprint", link.Target)
		assert.Equal(t, "imprints", link.Alias)
	})

	t.Run("unknown name compiles as a collection", func(t *testing.T) {
		b := NewBuilder[publisher]()
		ExpandRelationship(b, "archives", func(nested *Builder[imprint]) {})

		expr, err := b.Build()
		assert.NoError(t, err)
		link := expr.Links[0]
		assert.Equal(t, "archivesid", link.From)
		assert.Equal(t, "archivesid", link.To)
		assert.Equal(t, "imprint", link.Target)
		assert.Equal(t, "archives", link.Alias)
	})

	t.Run("attribute member name does not shadow", func(t *testing.T) {
		// "Name" is a plain attribute, so the literal name falls through to
		// the collection convention instead of resolving the member.
		b := NewBuilder[publisher]()
		ExpandRelationship(b, "name", func(nested *Builder[imprint]) {})

		expr, err := b.Build()
		assert.NoError(t, err)
		link := expr.Links[0]
		assert.Equal(t, "nameid", link.From)
		assert.Equal(t, "nameid", link.To)
	})

	t.Run("empty name", func(t *testing.T) {
		b := NewBuilder[publisher]()
		ExpandRelationship(b, "", func(nested *Builder[imprint]) {})
		_, err := b.Build()
		assert.ErrorContains(t, err, "relationship name cannot be empty")
	})
}
