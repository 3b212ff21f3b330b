package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const receiptPrompt = `Analyze this receipt image and return ONLY a JSON object with these fields:
{
  "vendor_name": "store or vendor name",
  "purchase_date": "YYYY-MM-DD",
  "county": "county the purchase was made in, if printed, else null",
  "subtotal_amount": subtotal before tax as a number,
  "tax_amount": total sales tax as a number,
  "total_amount": grand total as a number,
  "expense_category": "one of: supplies, food, travel, utilities, services, alcohol, tobacco, other",
  "tax_breakdowns": [{"tax_type": "state|county|transit|food", "amount": number}]
}
Use null for anything not visible on the receipt. Do not add commentary.`

// Gemini implements Extractor using Google Gemini.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

func (g *Gemini) ExtractReceiptData(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// genai.ImageData wants the bare format suffix, not the MIME type.
	format := strings.TrimPrefix(contentType, "image/")
	parts := []genai.Part{
		genai.ImageData(format, imageData),
		genai.Text(receiptPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	data, err := parseReceiptJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	return data, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
