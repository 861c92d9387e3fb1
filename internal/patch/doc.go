// Package patch turns edits of a draft document into replayable patch lists.
//
// Documents are plain JSON trees (map[string]any, []any, string,
// json.Number, bool, nil). Numbers stay json.Number so large integers
// round-trip exactly. A Draft is a private deep copy of a base document; once the
// caller is done editing it, Finalize diffs the draft against its base and
// reports two lists:
//   - forward patches, which move the base to the edited value
//   - reverse patches, which move the edited value back to the base
//
// Patches use RFC 6902 operation names with the path kept as a list of
// object keys and array indices. Apply replays them through
// github.com/evanphx/json-patch.
package patch
