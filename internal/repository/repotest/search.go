// Package repotest holds fixtures shared by the tests of every repository
// implementation, so the SQLite and in-memory stores are held to the same
// behaviour.
package repotest

// SearchRecipe is a published recipe seeded before the search cases run.
type SearchRecipe struct {
	Name        string
	Description string
}

// SearchCase is one ?q= value and the number of published recipes it must
// match against SearchRecipes.
type SearchCase struct {
	Q    string
	Want int
}

// SearchRecipes contains the characters LIKE treats specially so a store that
// forgets to escape them matches too much.
var SearchRecipes = []SearchRecipe{
	{Name: "50% Rye Bread", Description: "half rye, half wheat"},
	{Name: "Egg_Salad", Description: "with mayo"},
	{Name: "Banana Loaf", Description: `bake at 180\200`},
	{Name: "Tomato Pasta", Description: "plain and quick"},
}

// SearchCases are matched case-insensitively against name or description.
var SearchCases = []SearchCase{
	{Q: "%", Want: 1},
	{Q: "0%", Want: 1},
	{Q: "_", Want: 1},
	{Q: "g_s", Want: 1},
	{Q: "a_a", Want: 0},
	{Q: "%a%", Want: 0},
	{Q: `\`, Want: 1},
	{Q: "RYE", Want: 1},
	{Q: "tomato", Want: 1},
	{Q: "a", Want: 4},
}
