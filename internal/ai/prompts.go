package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/timeutil"
)

// GenerateParams carries everything the prompt builder needs. The prompt is
// a deterministic function of these fields.
type GenerateParams struct {
	Category        models.Category
	TrendContext    []string
	NewsContext     []string
	LastPostContent *string
	Now             time.Time
}

var jaWeekdays = [...]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"}

// localDateLine formats the current date the way the audience reads it
// (Japanese calendar line, operating timezone)
func localDateLine(now time.Time) string {
	local := now.In(timeutil.Location())
	return fmt.Sprintf("%d年%d月%d日 %s", local.Year(), int(local.Month()), local.Day(), jaWeekdays[local.Weekday()])
}

func lengthInstruction(length models.PostLength) string {
	switch length {
	case models.PostLengthShort:
		return "Keep it SHORT and punchy (100 characters or less)."
	case models.PostLengthLong:
		return "Write a longer, detailed post (up to 280 characters). Break it into multiple paragraphs with line breaks."
	default:
		return "Moderate length (around 150-200 characters is ideal). Use line breaks to separate thoughts."
	}
}

func hashtagInstruction(c models.Category) string {
	if c.HashtagMode == models.HashtagModeManual && c.Hashtags != "" {
		return fmt.Sprintf("Use EXACTLY these hashtags at the end: %s", c.Hashtags)
	}
	return "Generate relevant hashtags automatically."
}

// BuildSystemPrompt assembles the system prompt from the category
// configuration, the negative example and the custom instructions
func BuildSystemPrompt(p GenerateParams) string {
	c := p.Category
	var b strings.Builder

	fmt.Fprintf(&b, `You are a professional social media manager.
Create a post for X (formerly Twitter) based on the following settings.

Target Audience: %s
Tone: %s
Goal: %s
NG Words: %s
Current Date: %s

Constraints:
1. Length: %s
2. Hashtags: %s
3. Formatting: You MUST use line breaks (newlines) frequently to separate sentences and thoughts. Do not write a dense paragraph. Visually spacing out the text is critical.
4. Focus: Focus on a SINGLE specific topic or angle. Do not try to cover multiple unrelated things in one post.
`,
		c.TargetAudience, c.Tone, c.Goal, c.NGWords, localDateLine(p.Now),
		lengthInstruction(c.PostLength), hashtagInstruction(c))

	if p.LastPostContent != nil && *p.LastPostContent != "" {
		fmt.Fprintf(&b, `
PREVIOUS POST (AVOID SIMILARITY):
The following was the content of the last post. You MUST create something DIFFERENT.
%q
Instruction: Do not repeat the same topic, phrasing, or angle as the previous post.
`, *p.LastPostContent)
	}

	if c.CustomInstructions != "" {
		fmt.Fprintf(&b, "\nCustom Instructions from User:\n%s\n", c.CustomInstructions)
	}

	b.WriteString(`
Output must be in JSON format:
{
  "x_text": "Text for X"
}
`)
	return b.String()
}

// BuildUserPrompt assembles the user prompt with the optional news and trend
// context clauses
func BuildUserPrompt(p GenerateParams) string {
	c := p.Category
	var b strings.Builder

	fmt.Fprintf(&b, "Create a post about the category %q.", c.Name)

	if c.UseLatestNews && len(p.NewsContext) > 0 {
		fmt.Fprintf(&b, `

Latest News Context:
%s

Instruction:
Use the above news information to create a timely and relevant post.
Summarize the key points and add your own perspective based on the category goal.
`, strings.Join(p.NewsContext, "\n---\n"))
	}

	if c.TrendInspired && len(p.TrendContext) > 0 {
		switch c.TrendMode {
		case models.TrendModeTopicOnly:
			fmt.Fprintf(&b, `

Reference Trends (Posts):
%s

Instruction:
Analyze the common themes, issues, or excitement points in the above trends.
Based on that analysis, write a COMPLETELY ORIGINAL post from the user's perspective.
DO NOT copy or slightly rewrite the reference posts.
Focus on the underlying topic but use your own words and thoughts.
`, strings.Join(p.TrendContext, "\n---\n"))
		case models.TrendModeQuoteWithComment:
			// The comment accompanies a quote-repost of the first trend item.
			fmt.Fprintf(&b, `

Reference Post to Quote:
%s

Instruction:
Write a comment to accompany a Quote Repost of the above post.
Your comment should add value, express an opinion, or relate it to the category goal.
`, p.TrendContext[0])
		}
	}

	return b.String()
}

// BuildImagePrompt embeds the generated text plus either the category's
// image-style prompt / custom instructions or a generic tone-matching
// fallback
func BuildImagePrompt(text string, c models.Category) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Create a high-quality, engaging image suitable for a social media post.
Context: The image should visually represent or summarize the following text: %q.
Style: The image should be eye-catching and professional.`, text)

	if c.ImagePrompt != "" || c.CustomInstructions != "" {
		instructions := c.ImagePrompt
		if instructions == "" {
			instructions = c.CustomInstructions
		}
		fmt.Fprintf(&b, "\nSpecific User Instructions: %s", instructions)
	} else {
		b.WriteString("\nGuidance: Use a style that matches the tone of the text (e.g., if the text is futuristic, use a cyberpunk style; if it's calm, use a minimalist style).")
	}
	return b.String()
}
