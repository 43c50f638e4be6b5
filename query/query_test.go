package query_test

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/othierry/facade"
	"github.com/othierry/facade/query"
	"github.com/othierry/facade/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	facade.Record
}

func (*User) EntityName() string { return "User" }

func testModel() *schema.Model {
	return &schema.Model{
		Entities: []schema.Entity{
			{
				Name: "User",
				Fields: []schema.Field{
					{Name: "name", Kind: schema.String},
					{Name: "age", Kind: schema.Int},
					{Name: "city", Kind: schema.String, Optional: true},
					{Name: "tags", Kind: schema.StringList, Optional: true},
				},
			},
		},
	}
}

func newTestStack(t *testing.T) *facade.Stack {
	t.Helper()
	s, err := facade.New(facade.Options{
		StoreType:  facade.MemoryStoreType,
		Model:      testModel(),
		PrimaryKey: "name",
		Logger:     log.New(io.Discard),
	})
	require.NoError(t, err)
	require.NoError(t, s.Connect())
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUsers(t *testing.T, s *facade.Stack) {
	t.Helper()
	main := s.Main()
	users := []struct {
		name string
		age  int64
		city string
		tags []string
	}{
		{"Alice", 34, "Paris", []string{"go", "db"}},
		{"Bob", 28, "Lyon", []string{"go"}},
		{"Chloé", 41, "Paris", []string{"ops", "db"}},
		{"Renée", 23, "", nil},
	}
	for _, u := range users {
		obj, err := facade.Create[User](main)
		require.NoError(t, err)
		obj.Set("name", u.name)
		obj.Set("age", u.age)
		if u.city != "" {
			obj.Set("city", u.city)
		}
		if u.tags != nil {
			obj.Set("tags", u.tags)
		}
	}
	require.NoError(t, s.CommitSync(main))
}

func TestQueryAll(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	users := query.New[User](s).All()
	require.Len(t, users, 4)
	for _, u := range users {
		assert.NotEmpty(t, u.GetString("name"))
	}
}

func TestQueryFilterAndSort(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	users := query.New[User](s).
		EqualTo("city", "Paris").
		Sort("age DESC").
		All()
	require.Len(t, users, 2)
	assert.Equal(t, "Chloé", users[0].GetString("name"))
	assert.Equal(t, "Alice", users[1].GetString("name"))
}

func TestQueryComparisons(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	q := query.New[User](s).GreaterThanOrEqual("age", 28).LowerThan("age", 41)
	n, err := q.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueryFirstLastByPrimaryKey(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	first := query.New[User](s).First()
	require.NotNil(t, first)
	assert.Equal(t, "Alice", first.GetString("name"))

	last := query.New[User](s).Last()
	require.NotNil(t, last)
	assert.Equal(t, "Renée", last.GetString("name"))

	none := query.New[User](s).EqualTo("city", "Nantes").First()
	assert.Nil(t, none)
}

func TestQueryFirstHonorsExplicitSort(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	oldest := query.New[User](s).Sort("age DESC").First()
	require.NotNil(t, oldest)
	assert.Equal(t, "Chloé", oldest.GetString("name"))
}

func TestQueryInsensitiveMatching(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	users := query.New[User](s).
		EqualTo("name", "renee", query.CaseInsensitive, query.DiacriticInsensitive).
		All()
	require.Len(t, users, 1)
	assert.Equal(t, "Renée", users[0].GetString("name"))

	prefixed := query.New[User](s).
		StartingWith("name", "chl", query.CaseInsensitive).
		All()
	require.Len(t, prefixed, 1)
	assert.Equal(t, "Chloé", prefixed[0].GetString("name"))
}

func TestQueryMembership(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	n, err := query.New[User](s).ContainedIn("city", "Paris", "Lyon").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = query.New[User](s).NotContainedIn("name", "Alice", "Bob").Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueryListMembership(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	withGo := query.New[User](s).ContainingAny("tags", "go").Sort("name").All()
	require.Len(t, withGo, 2)
	assert.Equal(t, "Alice", withGo[0].GetString("name"))
	assert.Equal(t, "Bob", withGo[1].GetString("name"))

	both := query.New[User](s).ContainingAll("tags", "go", "db").All()
	require.Len(t, both, 1)
	assert.Equal(t, "Alice", both[0].GetString("name"))

	none := query.New[User](s).ContainingNone("tags", "ops").ContainingAny("tags", "go", "db").All()
	require.Len(t, none, 2)
}

func TestQueryExistence(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	homeless := query.New[User](s).EqualTo("city", nil).All()
	require.Len(t, homeless, 1)
	assert.Equal(t, "Renée", homeless[0].GetString("name"))

	n, err := query.New[User](s).NotEqualTo("city", nil).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestQueryOrGroups(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	either := query.Or(
		query.NewBuilder().EqualTo("city", "Lyon"),
		query.NewBuilder().GreaterThan("age", 40),
	)
	users := query.New[User](s).Matching(either).Sort("name").All()
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].GetString("name"))
	assert.Equal(t, "Chloé", users[1].GetString("name"))
}

func TestQueryOrOfConjunctions(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	// (city = Paris AND age > 35) OR (city = Lyon AND age < 30)
	either := query.Or(
		query.NewBuilder().EqualTo("city", "Paris").GreaterThan("age", 35),
		query.NewBuilder().EqualTo("city", "Lyon").LowerThan("age", 30),
	)
	users := query.New[User](s).Matching(either).Sort("name").All()
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].GetString("name"))
	assert.Equal(t, "Chloé", users[1].GetString("name"))
}

func TestQueryTopBySort(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	top := query.New[User](s).Sort("age DESC").Limit(1).All()
	require.Len(t, top, 1)
	assert.Equal(t, "Chloé", top[0].GetString("name"))
}

func TestIndependentCommitVisibleInMain(t *testing.T) {
	s := newTestStack(t)

	worker := s.RegisterIndependentContext("worker")
	t.Cleanup(func() { s.UnregisterContext("worker") })

	u, err := facade.Create[User](worker)
	require.NoError(t, err)
	u.Set("name", "Bob")
	u.Set("age", int64(28))
	require.NoError(t, s.CommitSync(worker))

	found := query.New[User](s).EqualTo("name", "Bob").All()
	require.Len(t, found, 1)
	assert.Equal(t, int64(28), found[0].GetInt("age"))
}

func TestQueryIDs(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	ids := query.New[User](s).EqualTo("city", "Paris").IDs()
	require.Len(t, ids, 2)
	for _, id := range ids {
		assert.Equal(t, "User", id.Entity())
		assert.False(t, id.IsTemporary())
	}
}

func TestQueryDistinctDicts(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	dicts := query.New[User](s).
		Existing("city", true).
		Distinct("city").
		Dicts()
	require.Len(t, dicts, 2)
	cities := map[string]bool{}
	for _, d := range dicts {
		city, _ := d["city"].(string)
		cities[city] = true
	}
	assert.True(t, cities["Paris"])
	assert.True(t, cities["Lyon"])
}

func TestQueryDelete(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	staged, err := query.New[User](s).EqualTo("city", "Lyon").Delete()
	require.NoError(t, err)
	assert.Equal(t, int64(1), staged)

	// Staged only: the context sees it gone before the commit.
	n, err := query.New[User](s).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.CommitSync(s.Main()))
	n, err = query.New[User](s).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestQueryBatchDelete(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	removed, err := query.New[User](s).LowerThan("age", 30).BatchDelete()
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err := query.New[User](s).Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueryLimitOffset(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	page := query.New[User](s).Sort("name").Limit(2).Offset(1).All()
	require.Len(t, page, 2)
	assert.Equal(t, "Bob", page[0].GetString("name"))
	assert.Equal(t, "Chloé", page[1].GetString("name"))
}

func TestQueryInChildContext(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	child := s.RegisterChildContext("worker")
	t.Cleanup(func() { s.UnregisterContext("worker") })

	users := query.New[User](s).InContext(child).EqualTo("name", "Bob").All()
	require.Len(t, users, 1)
	assert.Same(t, child, users[0].Context())
}

func TestQuerySortPanicsOnMalformedSpec(t *testing.T) {
	s := newTestStack(t)

	assert.PanicsWithError(t, `misuse: invalid sort descriptor "age SIDEWAYS": invalid sort direction "SIDEWAYS" in "age SIDEWAYS"`, func() {
		query.New[User](s).Sort("age SIDEWAYS")
	})
}

func TestPagedQuery(t *testing.T) {
	s := newTestStack(t)
	seedUsers(t, s)

	paged := query.Paged(query.New[User](s).Sort("name"), 3)
	assert.Equal(t, int64(4), paged.TotalCount())
	assert.True(t, paged.CanLoadMore())

	batch := paged.LoadMore()
	require.Len(t, batch, 3)
	assert.Equal(t, "Alice", batch[0].GetString("name"))

	batch = paged.LoadMore()
	require.Len(t, batch, 1)
	assert.Equal(t, "Renée", batch[0].GetString("name"))

	assert.False(t, paged.CanLoadMore())
	assert.Nil(t, paged.LoadMore())
	assert.Len(t, paged.Results(), 4)
}

func TestBuilderPredicateEmpty(t *testing.T) {
	b := query.NewBuilder()
	assert.True(t, b.Empty())
	assert.Nil(t, b.Predicate())

	b.EqualTo("age", 1)
	assert.False(t, b.Empty())
	assert.NotNil(t, b.Predicate())
}
