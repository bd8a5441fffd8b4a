package workflow

import (
	"fmt"
	"strings"
)

const cleanPrompt = `You are a meticulous text pre-processor preparing source material for a %s.

Clean the raw text below, which was extracted from a document and may contain layout noise:
- remove page numbers, running headers and footers, citation markers, LaTeX and stray symbols
- rejoin words split across lines and repair broken sentences
- keep every fact, name and number; do not summarise and do not add commentary

Return only the cleaned text.

RAW TEXT:
%s`

var formatGuides = map[string]string{
	"podcast":          "an engaging two-host podcast where Speaker 1 leads and Speaker 2 asks curious follow-up questions",
	"interview":        "an interview where Speaker 1 is the interviewer and Speaker 2 is the subject-matter expert",
	"panel-discussion": "a moderated panel where Speaker 1 moderates and Speakers 2 to 4 offer distinct perspectives",
	"debate":           "a structured debate where Speaker 1 moderates while Speaker 2 argues for and Speaker 3 argues against",
	"summary":          "a concise spoken summary delivered by Speaker 1 with brief clarifying questions from Speaker 2",
	"narration":        "a single narrator (Speaker 1) reading a polished narrative version of the material",
	"storytelling":     "a storyteller (Speaker 1) turning the material into a vivid story with occasional reactions from Speaker 2",
	"explainer":        "an explainer where Speaker 1 breaks down concepts step by step for a curious Speaker 2",
	"lecture":          "a lecture by Speaker 1 with occasional student questions from Speaker 2",
	"tutorial":         "a hands-on tutorial where Speaker 1 instructs and Speaker 2 follows along and asks practical questions",
	"q-and-a":          "a question-and-answer session where Speaker 2 asks pointed questions and Speaker 1 answers",
	"news-report":      "a news report with an anchor (Speaker 1) and a field correspondent (Speaker 2)",
	"executive-brief":  "an executive briefing where Speaker 1 presents decisions and risks to a time-pressed Speaker 2",
	"meeting":          "a working meeting between colleagues (Speakers 1 to 3) reviewing the material and agreeing next steps",
	"analysis":         "an analytical discussion where Speaker 1 and Speaker 2 weigh evidence, strengths and weaknesses",
}

var lengthGuides = map[string]string{
	"short":     "about 5 minutes of speech (roughly 750 words)",
	"medium":    "about 10 minutes of speech (roughly 1500 words)",
	"long":      "about 20 minutes of speech (roughly 3000 words)",
	"very-long": "about 30 minutes or more of speech (roughly 4500 words or more)",
}

var styleGuides = map[string]string{
	"normal":       "clear and natural",
	"friendly":     "warm and welcoming",
	"professional": "polished and precise",
	"academic":     "rigorous, citing concepts carefully",
	"casual":       "relaxed and conversational",
	"technical":    "detailed, using correct technical vocabulary",
	"gen-z":        "playful, using current internet slang sparingly",
	"funny":        "witty, with light humour that never distorts the facts",
}

func cleanMessage(format, chunk string) string {
	return fmt.Sprintf(cleanPrompt, format, chunk)
}

func scriptSystemPrompt(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an award-winning scriptwriter. Write %s.\n", formatGuides[opts.Format])
	fmt.Fprintf(&b, "Target length: %s.\n", lengthGuides[opts.Length])
	fmt.Fprintf(&b, "Tone: %s.\n", styleGuides[opts.Style])
	fmt.Fprintf(&b, "Write the entire script in %s.\n", opts.Language)
	b.WriteString("Label every line with its speaker as \"Speaker N:\". Keep the facts of the source intact, ")
	b.WriteString("use natural interruptions and reactions, and never mention that the script was generated.\n")
	if opts.Preference != "" {
		fmt.Fprintf(&b, "Additional instructions from the listener: %s\n", opts.Preference)
	}
	return b.String()
}

func ttsPrepSystemPrompt(opts Options) string {
	return fmt.Sprintf(`You are an international oscar-winning screenwriter rewriting a %s script for text-to-speech.

Rewrite the transcript so it sounds natural when read aloud by separate voices:
- keep every speaker as "Speaker N" and keep the order of ideas
- add natural fillers such as "umm" or "hmm" sparingly for the non-leading speakers
- remove stage directions, sound effects and markdown
- keep the dialogue in %s`, opts.Format, opts.Language)
}

const summarySystemPrompt = `You analyse podcast transcripts. Respond with a single JSON object and nothing else, using exactly these keys:
"title": a short title,
"summary": a paragraph summarising the conversation,
"topics": an array of the main topics,
"key_takeaways": an array of the most important points,
"notable_quotes": an array of objects {"speaker": "...", "quote": "..."},
"speakers": an array of objects {"name": "Speaker N", "role": "..."},
"conversation_flow": an array of objects {"section": "...", "description": "..."}.`
