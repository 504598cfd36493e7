package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"

	"kasiran/backend/internal/domain"
)

type suggestionList struct {
	Suggestions []string `json:"suggestions" jsonschema:"description=Exactly 5 suggested expense descriptions in Indonesian."`
}

type purchaseSummary struct {
	Summary string `json:"summary" jsonschema:"description=A concise summary of the purchase including items and quantities."`
}

type OpenAI struct {
	client *openai.Client
	model  shared.ResponsesModel
}

func NewOpenAI(apiKey string, model string, opts ...option.RequestOption) *OpenAI {
	if strings.TrimSpace(model) == "" {
		model = string(shared.ChatModelGPT4o)
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAI{client: &client, model: shared.ResponsesModel(model)}
}

func (a *OpenAI) Ready() bool { return true }

func (a *OpenAI) ExtractSale(ctx context.Context, pdfDataURI string) (*domain.ExtractedSale, error) {
	if err := ValidatePDFDataURI(pdfDataURI); err != nil {
		return nil, err
	}
	input := responses.ResponseNewParamsInputUnion{
		OfInputItemList: responses.ResponseInputParam{
			responses.ResponseInputItemParamOfMessage(responses.ResponseInputMessageContentListParam{
				{OfInputText: &responses.ResponseInputTextParam{Text: extractSalePrompt}},
				{OfInputFile: &responses.ResponseInputFileParam{
					FileData: param.NewOpt(strings.TrimSpace(pdfDataURI)),
					Filename: param.NewOpt("receipt.pdf"),
				}},
			}, responses.EasyInputMessageRoleUser),
		},
	}

	var sale domain.ExtractedSale
	if err := a.generate(ctx, input, "sale_extraction", "Line items and date read from a sales receipt", &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (a *OpenAI) SuggestExpenses(ctx context.Context, existing []string, query string) ([]string, error) {
	input := responses.ResponseNewParamsInputUnion{OfString: param.NewOpt(suggestExpensesPrompt(existing, query))}

	var out suggestionList
	if err := a.generate(ctx, input, "expense_suggestions", "Suggested expense descriptions", &out); err != nil {
		return nil, err
	}
	return FilterSuggestions(existing, out.Suggestions, maxSuggestions), nil
}

func (a *OpenAI) SummarizePurchase(ctx context.Context, items []domain.SaleItem) (string, error) {
	if len(items) == 0 {
		return "", ErrNoItemsToBrief
	}
	input := responses.ResponseNewParamsInputUnion{OfString: param.NewOpt(summarizePurchasePrompt(items))}

	var out purchaseSummary
	if err := a.generate(ctx, input, "purchase_summary", "A short purchase summary for a receipt", &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Summary), nil
}

// generate sends input with a strict JSON schema derived from target and
// decodes the reply into target.
func (a *OpenAI) generate(ctx context.Context, input responses.ResponseNewParamsInputUnion, name string, description string, target any) error {
	schema, err := schemaFor(target)
	if err != nil {
		return err
	}

	params := responses.ResponseNewParams{
		Model: a.model,
		Input: input,
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        name,
					Strict:      param.NewOpt(true),
					Schema:      schema,
					Description: param.NewOpt(description),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai responses error: %w", err)
	}
	content := resp.OutputText()
	if strings.TrimSpace(content) == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func schemaFor(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema, nil
}
