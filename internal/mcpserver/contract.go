package mcpserver

// StoreLayout describes how notes are addressed and stored, for LLM
// consumers that create or move notes.
const StoreLayout = `# folio note layout

Notes form a tree. A note is addressed by a slash-separated path such as
` + "`projects/rust-app/architecture`" + `; the empty path is the root note.

## Storage

- Each note is a directory holding one ` + "`_index.md`" + ` file with its Markdown content.
- Child notes are sub-directories of their parent.
- Archived notes live under an ` + "`_archive`" + ` directory inside their parent,
  e.g. ` + "`projects/_archive/old-idea`" + `. Archiving moves the whole subtree.

## Rules

1. Path segments must not start with a dot and must not be ` + "`_index.md`" + `.
2. ` + "`..`" + ` is never allowed.
3. The title shown in listings is the ` + "`title`" + ` field of optional YAML front
   matter, or else the first ` + "`# heading`" + ` of the body.
4. Renaming keeps a note's id; its descendants move with it.
`
