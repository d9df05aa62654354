package github

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/adw/config"
)

// testClient builds a client with a scripted gh subprocess and a
// pre-resolved repo path so no real git or gh runs.
func testClient(output string, err error) (*Client, *[][]string) {
	var calls [][]string
	c := NewClient(nil, config.EnvironmentConfig{}, nil).
		WithRunner(func(ctx context.Context, env []string, args ...string) (string, error) {
			calls = append(calls, args)
			return output, err
		})
	c.repoPath = "acme/widgets"
	return c, &calls
}

func TestFetchIssue(t *testing.T) {
	payload := `{
		"number": 42,
		"title": "Add widget",
		"body": "We need a widget",
		"state": "OPEN",
		"author": {"login": "alice"},
		"labels": [{"id": "1", "name": "bug", "color": "ff0000"}],
		"comments": [{"id": "c1", "author": {"login": "bob"}, "body": "agreed", "createdAt": "2026-01-01T00:00:00Z"}],
		"url": "https://github.com/acme/widgets/issues/42"
	}`
	c, calls := testClient(payload, nil)

	issue, err := c.FetchIssue(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "Add widget", issue.Title)
	assert.Equal(t, "alice", issue.Author.Login)
	require.Len(t, issue.Comments, 1)
	assert.Equal(t, "bob", issue.Comments[0].Author.Login)

	require.Len(t, *calls, 1)
	args := (*calls)[0]
	assert.Equal(t, []string{"issue", "view", "42", "-R", "acme/widgets", "--json", issueViewFields}, args)
}

func TestFetchIssueError(t *testing.T) {
	c, _ := testClient("", fmt.Errorf("gh: issue not found"))
	_, err := c.FetchIssue(context.Background(), "999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999")
}

func TestIssueSummarize(t *testing.T) {
	issue := &Issue{Number: 7, Title: "t", Body: "b", State: "OPEN", URL: "https://example.com"}
	s := issue.Summarize()
	assert.Equal(t, Summary{Number: 7, Title: "t", Body: "b"}, s)
}

func TestPostComment(t *testing.T) {
	c, calls := testClient("", nil)

	err := c.PostComment(context.Background(), "42", "[ADW-BOT] run1_ops: ✅ done")
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	args := (*calls)[0]
	assert.Equal(t, "comment", args[1])
	assert.Contains(t, args, "--body")
	assert.Contains(t, args, "[ADW-BOT] run1_ops: ✅ done")
}

func TestFetchIssueCommentsSortsOldestFirst(t *testing.T) {
	payload := `{"comments": [
		{"id": "c2", "body": "second", "createdAt": "2026-01-02T00:00:00Z"},
		{"id": "c1", "body": "first", "createdAt": "2026-01-01T00:00:00Z"}
	]}`
	c, _ := testClient(payload, nil)

	comments := c.FetchIssueComments(context.Background(), "42")
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Body)
	assert.Equal(t, "second", comments[1].Body)
}

func TestFetchIssueCommentsDegradesToEmpty(t *testing.T) {
	c, _ := testClient("", fmt.Errorf("network down"))
	assert.Empty(t, c.FetchIssueComments(context.Background(), "42"))
}

func TestFindKeywordComment(t *testing.T) {
	issue := &Issue{Comments: []Comment{
		{Body: "please adw_build this", CreatedAt: "2026-01-01T00:00:00Z"},
		{Body: BotIdentifier + " run1_ops: adw_build started", CreatedAt: "2026-01-03T00:00:00Z"},
		{Body: "retry adw_build now", CreatedAt: "2026-01-02T00:00:00Z"},
	}}

	t.Run("newest human comment wins, bot comments skipped", func(t *testing.T) {
		c := FindKeywordComment("adw_build", issue)
		require.NotNil(t, c)
		assert.Equal(t, "retry adw_build now", c.Body)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, FindKeywordComment("adw_review", issue))
	})
}

func TestPRForBranch(t *testing.T) {
	t.Run("existing PR", func(t *testing.T) {
		c, _ := testClient(`[{"url": "https://github.com/acme/widgets/pull/7"}]`, nil)
		url, ok := c.PRForBranch(context.Background(), "feat-branch")
		assert.True(t, ok)
		assert.Equal(t, "https://github.com/acme/widgets/pull/7", url)
	})

	t.Run("no PR", func(t *testing.T) {
		c, _ := testClient(`[]`, nil)
		_, ok := c.PRForBranch(context.Background(), "feat-branch")
		assert.False(t, ok)
	})

	t.Run("gh failure", func(t *testing.T) {
		c, _ := testClient("", fmt.Errorf("gh down"))
		_, ok := c.PRForBranch(context.Background(), "feat-branch")
		assert.False(t, ok)
	})
}

func TestFetchOpenIssues(t *testing.T) {
	payload := `[{"number": 1, "title": "a"}, {"number": 2, "title": "b"}]`
	c, _ := testClient(payload, nil)

	items := c.FetchOpenIssues(context.Background())
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Number)
}
