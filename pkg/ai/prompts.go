package ai

// SummarizePrompt condenses one or more texts from the same page into a
// single summary. Used by the bottom-up tree reduction during ingestion.
const SummarizePrompt = `
You are condensing content that belongs to a single record (an email thread,
a CRM account, a support ticket, or a document).

Write one concise summary paragraph that preserves:
- who is involved and their roles
- what is being discussed, decided, or sold
- concrete dates, amounts, and identifiers

Do not invent information. Do not mention that this is a summary.

Content:
%s
`

// CompileQueryPrompt translates a natural-language information request into
// the closed filter schema. The recognized values are interpolated so the
// model never has to guess at the enumeration.
const CompileQueryPrompt = `
You translate a user's information request into a structured retrieval query.

Fill only the fields the request clearly implies, leave everything else
empty. Use these closed value sets:
- search_method: "exact" when the request names specific people, sources or
  time ranges; "relevant" when it asks an open question about content.
- return_granularity: "page" for whole records, "block" for specific parts.
- page_types: %s
- block_labels: %s
- participant roles: %s

Time filters: resolve relative phrases ("last week", "yesterday") into
start_day and end_day as YYYY-MM-DD using the current date %s.

Participants are people or organizations the request names, with the role
the request implies for them.

Request: %s
`
