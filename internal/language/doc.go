// Package language normalizes the output language of a generation run.
//
// Users may give a language as an ISO 639 code ("fr", "fra", "fre"), a BCP 47
// tag ("pt-BR") or an English word ("french"). All of them resolve to the
// English display name the prompts expect. Anything unrecognized is kept as
// typed, so free-form languages still reach the model.
package language
