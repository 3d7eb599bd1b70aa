package summarize

import (
	"fmt"
	"strings"

	"papercast/internal/podcast"
)

func summaryPrompt(paper podcast.Paper, language string) string {
	var builder strings.Builder
	builder.WriteString("Summarize the following research paper as source material for a podcast script.\n\n")
	fmt.Fprintf(&builder, "Title: %s\n", paper.Title)
	fmt.Fprintf(&builder, "Authors: %s\n", strings.Join(paper.Authors, ", "))
	fmt.Fprintf(&builder, "Abstract: %s\n\n", paper.Abstract)
	builder.WriteString("Requirements:\n")
	builder.WriteString("1. Cover the core idea, key contributions, notable results, and why the work matters.\n")
	builder.WriteString("2. Write 500 to 1500 characters of plain prose. No markdown formatting.\n")
	builder.WriteString("3. Aim at students and researchers following the field.\n")
	if language != "" && language != "en" {
		fmt.Fprintf(&builder, "4. Write the summary in language code %q.\n", language)
	}
	builder.WriteString("\nSummary:")
	return builder.String()
}

func scriptPrompt(papers []podcast.Paper, date, language string) string {
	var builder strings.Builder
	builder.WriteString("You are the host of a daily podcast covering new AI research papers.\n")
	builder.WriteString("Write the complete episode script from the paper summaries below.\n\n")
	fmt.Fprintf(&builder, "Date: %s\n", date)
	fmt.Fprintf(&builder, "Paper count: %d\n\n", len(papers))
	for i, paper := range papers {
		fmt.Fprintf(&builder, "Paper %d:\n", i+1)
		fmt.Fprintf(&builder, "- Title: %s\n", paper.Title)
		fmt.Fprintf(&builder, "- Authors: %s\n", joinAuthors(paper.Authors, 3))
		fmt.Fprintf(&builder, "- Summary: %s\n\n", paper.Summary)
	}
	builder.WriteString("Guidelines:\n")
	builder.WriteString("- Open with a short welcome that mentions the date and a common thread across the papers.\n")
	builder.WriteString("- Narrate each paper conversationally: the problem, the idea, the results, the significance.\n")
	builder.WriteString("- Bridge between papers when they relate; otherwise transition naturally.\n")
	builder.WriteString("- Close with a brief wrap-up and thanks.\n")
	builder.WriteString("- Output one continuous spoken script. No section headings, no markdown.\n")
	if language != "" && language != "en" {
		fmt.Fprintf(&builder, "- Write the script in language code %q.\n", language)
	}
	builder.WriteString("\nScript:")
	return builder.String()
}

// fallbackSummary assembles a factual summary from the paper metadata when
// the model cannot produce one.
func fallbackSummary(paper podcast.Paper) string {
	abstract := paper.Abstract
	if len(abstract) > 800 {
		abstract = abstract[:800]
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Title: %s\n\n", paper.Title)
	fmt.Fprintf(&builder, "Authors: %s\n\n", joinAuthors(paper.Authors, 5))
	if abstract != "" {
		fmt.Fprintf(&builder, "Research content: %s\n\n", abstract)
	}
	fmt.Fprintf(&builder, "This paper presents recent findings from a team of %d researchers.", len(paper.Authors))
	return builder.String()
}

func fallbackScript(papers []podcast.Paper, date string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Welcome to the daily papers podcast for %s. ", date)
	fmt.Fprintf(&builder, "Today we cover the top %d trending papers.\n\n", len(papers))
	for i, paper := range papers {
		fmt.Fprintf(&builder, "Paper number %d is titled %s, by %s. ", i+1, paper.Title, joinAuthors(paper.Authors, 3))
		if paper.Summary != "" {
			builder.WriteString(paper.Summary)
		}
		builder.WriteString("\n\n")
	}
	builder.WriteString("That wraps up today's episode. Thanks for listening.")
	return builder.String()
}

func joinAuthors(authors []string, limit int) string {
	if len(authors) <= limit {
		return strings.Join(authors, ", ")
	}
	return fmt.Sprintf("%s and %d others", strings.Join(authors[:limit], ", "), len(authors)-limit)
}
