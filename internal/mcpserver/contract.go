package mcpserver

const fence = "```"

// MarkupContract describes the item markup that LLM consumers should write
// when creating or updating items.
const MarkupContract = `# Stickies Markup Contract

Item bodies are plain text in a small markdown dialect. The server stores
every body in canonical form, so what you read back may differ in spacing
from what you wrote.

## Blocks

- Headings: one to three ` + "`#`" + ` then a space (` + "`# Title`" + `). Deeper levels are clamped to three.
- Bulleted lists: lines starting with ` + "`- `" + ` or ` + "`* `" + `.
- Numbered lists: lines starting with ` + "`1. `" + ` (the space is required); numbering restarts from the first item.
- Quotes: lines starting with ` + "`> `" + `.
- Code: fenced with three backticks; nothing inside a fence is parsed.
- An image alone on a line becomes an image block.
- Blocks are separated by a blank line.

## Inline

- ` + "`**bold**` or `__bold__`, `*italic*` or `_italic_`, `***both***` or `___both___`, `~~strike~~`, `` `code` ``" + `
- Links ` + "`[text](url)`" + ` and images ` + "`![alt](url)`" + `.
- A backslash escapes a markup character: ` + "`\\`, `*`, `_`, backtick, `[`, `]`, `~`, `#`" + `.

## Tags

A tag reference is ` + "`#`" + ` followed by a tag path, e.g. ` + "`#project/alpha`" + `.

- Paths are segments separated by ` + "`/`" + `. Segments are non-empty and contain no
  whitespace, ` + "`/`" + ` or ` + "`#`" + `.
- The ` + "`#`" + ` must start a line or follow whitespace or ` + "`(`" + `; ` + "`a#b`" + ` is plain text.
- Trailing ` + "`. , ; : ! ? )`" + ` is not part of the path.
- ` + "`#tag`" + ` at the start of a line is a tag, not a heading (headings need a space).
- Every tag referenced in the body is added to the item's tag set.

## Tools

- Read the tag tree with ` + "`list_tags`" + ` before inventing new tags; reuse existing paths.
- ` + "`rename_tag`" + `, ` + "`move_tag`" + ` and ` + "`delete_tag`" + ` rewrite every item carrying the tag or a descendant,
  including ` + "`#tag`" + ` references in bodies. A deleted reference stays as escaped text.
- Upload images with ` + "`upload_image`" + `; it returns a ` + "`markup`" + ` field ready to paste.

## Example

` + fence + `
# Weekly standup

Attendees: Alice, Bob. #meetings/standup

- ship the **parser** #project/alpha
- review ~~old~~ new design

![Whiteboard](/uploads/3f2a9c1e.png)
` + fence + `
`
