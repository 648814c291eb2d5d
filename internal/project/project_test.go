package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("unknown project", func(t *testing.T) {
		_, err := s.GetFiles(ctx, "nope", "")
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		err := s.PutFiles(ctx, "p1", []ParsedFile{
			{Path: "/App.tsx", Content: "export default 1;"},
			{Path: "lib/util.ts", Content: "export const x = 1;"},
		})
		require.NoError(t, err)

		entries, err := s.GetFiles(ctx, "p1", "")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "/App.tsx", entries[0].Path)
		assert.Equal(t, "/lib/util.ts", entries[1].Path, "paths are normalized")
		assert.NotEmpty(t, entries[0].ContentHash)
	})

	t.Run("upsert bumps version", func(t *testing.T) {
		require.NoError(t, s.PutFiles(ctx, "p1", []ParsedFile{
			{Path: "/App.tsx", Content: "export default 2;"},
		}))
		entries, err := s.GetFiles(ctx, "p1", "")
		require.NoError(t, err)
		assert.Equal(t, 2, entries[0].Version)
		assert.Equal(t, "export default 2;", entries[0].Content)
	})

	t.Run("projects are isolated", func(t *testing.T) {
		require.NoError(t, s.PutFiles(ctx, "p2", []ParsedFile{
			{Path: "/other.ts", Content: ""},
		}))
		entries, err := s.GetFiles(ctx, "p1", "")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestExtractFiles(t *testing.T) {
	t.Run("single block", func(t *testing.T) {
		files, problems := ExtractFiles("Here is your app:\n" +
			"```tsx file=/App.tsx\n" +
			"export default function App() {}\n" +
			"```\n" +
			"Enjoy!")
		require.Empty(t, problems)
		require.Len(t, files, 1)
		assert.Equal(t, "/App.tsx", files[0].Path)
		assert.Equal(t, "tsx", files[0].Language)
		assert.Equal(t, "export default function App() {}\n", files[0].Content)
	})

	t.Run("multiple blocks with prose between", func(t *testing.T) {
		files, problems := ExtractFiles(
			"```tsx file=/App.tsx\na\n```\n" +
				"Some explanation.\n" +
				"```ts file=utils/format.ts\nb\n```\n")
		require.Empty(t, problems)
		require.Len(t, files, 2)
		assert.Equal(t, "/utils/format.ts", files[1].Path)
	})

	t.Run("quoted path", func(t *testing.T) {
		files, _ := ExtractFiles("```ts file=\"/my file.ts\"\nx\n```")
		require.Len(t, files, 1)
		assert.Equal(t, "/my file.ts", files[0].Path)
	})

	t.Run("plain block without file attr is ignored", func(t *testing.T) {
		files, problems := ExtractFiles("```sh\nnpm install\n```\n")
		assert.Empty(t, files)
		assert.Empty(t, problems)
	})

	t.Run("longer fence preserves inner backticks", func(t *testing.T) {
		files, problems := ExtractFiles(
			"````md file=/README.md\n" +
				"Use it like this:\n" +
				"```ts\nconst x = 1;\n```\n" +
				"````\n")
		require.Empty(t, problems)
		require.Len(t, files, 1)
		assert.Contains(t, files[0].Content, "```ts\nconst x = 1;\n```")
	})

	t.Run("unterminated block is reported", func(t *testing.T) {
		files, problems := ExtractFiles(
			"```tsx file=/App.tsx\nexport default 1;\n")
		assert.Empty(t, files)
		require.Len(t, problems, 1)
		assert.Equal(t, 1, problems[0].Line)
		assert.Contains(t, problems[0].Message, "unterminated")
		assert.Contains(t, problems[0].Message, "/App.tsx")
	})

	t.Run("duplicate path keeps the later block", func(t *testing.T) {
		files, problems := ExtractFiles(
			"```ts file=/a.ts\nfirst\n```\n" +
				"```ts file=/a.ts\nsecond\n```\n")
		require.Len(t, files, 1)
		assert.Equal(t, "second\n", files[0].Content)
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0].Message, "duplicate")
	})

	t.Run("no blocks at all", func(t *testing.T) {
		files, problems := ExtractFiles("just a chat message")
		assert.Empty(t, files)
		assert.Empty(t, problems)
	})
}
