package mcpserver

// ResultFormatContract describes the snapshot document accepted by
// submit_result, the HTTP API, and the inbox directory.
const ResultFormatContract = `# clustermap Result Format

A result is one snapshot of a clustering run: an ordered list of top-level
clusters. Submitting a result replaces the current one; viewers are updated
shortly after the last submission in a burst.

## Structure

` + "```" + `yaml
query: search terms            # OPTIONAL – shown for context only
clusters:                      # REQUIRED – may be empty
  - id: "1"                    # REQUIRED – unique within this result
    label: Languages           # display label of the group
    subclusters:               # OPTIONAL – nested clusters, same shape
      - id: "2"
        label: Go
        items:
          - id: "10"
            fields:
              title: Effective Go
    items:                     # OPTIONAL – documents in this cluster
      - id: "11"               # REQUIRED – unique within this result
        fields:                # OPTIONAL – string map; "title" is displayed
          title: A Tour of Go
` + "```" + `

JSON uses the same field names.

## Rules

1. **Every cluster and item needs a non-empty ` + "`" + `id` + "`" + `.** Null entries are rejected.
2. **Ids identify nodes within one result only.** A cluster or item listed in
   several places with the same id is shown once and referenced from each
   parent; it is not duplicated.
3. **No cluster may contain itself**, directly or through its subclusters.
4. **Order matters.** A group lists its subclusters first, then its items,
   each in the order given.
5. Item labels are rendered as ` + "`" + `[<id>] <title>` + "`" + `, or ` + "`" + `[<id>]` + "`" + ` without a title.
6. Submitting a result identical to the current one is accepted but not
   stored again.
`
