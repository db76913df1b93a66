package service

import (
	"fmt"
	"strings"

	"github.com/vinetrail/vinetrail-backend/pkg/docparse"
	"github.com/vinetrail/vinetrail-backend/pkg/llm"
	"github.com/vinetrail/vinetrail-backend/types"
)

// maxPromptVenues caps how many venue names are listed in the prompt.
const maxPromptVenues = 400

const outputShape = `{
  "confidence": 0.0,
  "proposal": {
    "customer_name": "string",
    "customer_email": "string",
    "customer_phone": "string",
    "trip_title": "string",
    "trip_type": "one of the trip types",
    "start_date": "YYYY-MM-DD",
    "end_date": "YYYY-MM-DD",
    "party_size": 0,
    "total": 0.0,
    "pickup_address": "string",
    "notes": "string"
  },
  "days": [
    {
      "date": "YYYY-MM-DD",
      "title": "string",
      "stops": [
        {
          "venue_name": "string",
          "stop_type": "one of the stop types",
          "start_time": "HH:MM",
          "end_time": "HH:MM",
          "notes": "string"
        }
      ]
    }
  ],
  "guests": [
    {"name": "string", "email": "string", "phone": "string", "dietary_restrictions": "string"}
  ],
  "inclusions": [
    {"description": "string", "inclusion_type": "one of the inclusion types", "pricing_type": "one of the pricing types", "amount": 0.0, "quantity": 0}
  ],
  "extraction_notes": "string"
}`

const strictPreamble = "Return ONLY a raw JSON object. No markdown, no code fences, no explanation before or after the JSON.\n\n"

const retryNotice = "Your previous response could not be parsed as the required JSON object. " +
	"Respond again with only the raw JSON object described in the instructions."

// systemPrompt builds the extraction instructions. strict is used on the
// second attempt.
func systemPrompt(venues []types.Venue, strict bool) string {
	var b strings.Builder
	if strict {
		b.WriteString(strictPreamble)
	}
	b.WriteString("You extract wine-tour trip details from customer documents such as itineraries, emails, spreadsheets and booking confirmations.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Only extract information that is present in the documents. Never invent names, dates, prices or venues.\n")
	b.WriteString("- Omit any field you cannot find. Do not output null or empty placeholder values.\n")
	b.WriteString("- Dates use YYYY-MM-DD. Times use 24-hour HH:MM.\n")
	fmt.Fprintf(&b, "- trip_type is one of: %s.\n", strings.Join(types.TripTypes, ", "))
	fmt.Fprintf(&b, "- stop_type is one of: %s.\n", strings.Join(types.StopTypes, ", "))
	fmt.Fprintf(&b, "- inclusion_type is one of: %s.\n", strings.Join(types.InclusionTypes, ", "))
	fmt.Fprintf(&b, "- pricing_type is one of: %s.\n", strings.Join(types.PricingTypes, ", "))
	b.WriteString("- confidence is a number from 0 to 1 describing how complete and reliable the extraction is.\n")
	b.WriteString("- Put anything ambiguous or worth a human check in extraction_notes.\n")

	if len(venues) > 0 {
		b.WriteString("\nKnown venues. When a document mentions one of these, copy the name exactly as written here:\n")
		for i, v := range venues {
			if i == maxPromptVenues {
				break
			}
			fmt.Fprintf(&b, "- %s (%s)\n", v.Name, v.Type)
		}
	}

	b.WriteString("\nRespond with a single JSON object of exactly this shape:\n")
	b.WriteString(outputShape)
	return b.String()
}

// userContent labels each parsed file's text by name and attaches its images.
// Files that failed to parse are left out.
func userContent(results []docparse.Result) []llm.ContentBlock {
	var blocks []llm.ContentBlock
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if text := strings.TrimSpace(r.Content.Text); text != "" {
			blocks = append(blocks, llm.TextBlock(fmt.Sprintf("=== File: %s ===\n%s", r.File.Name, text)))
		} else if len(r.Content.Images) > 0 {
			blocks = append(blocks, llm.TextBlock(fmt.Sprintf("=== File: %s (images) ===", r.File.Name)))
		}
		for _, img := range r.Content.Images {
			blocks = append(blocks, llm.ImageBlock(img.MIMEType, img.Data))
		}
	}
	blocks = append(blocks, llm.TextBlock("Return only the JSON object."))
	return blocks
}
