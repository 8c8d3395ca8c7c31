package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
)

// NutritionixProvider reads natural-language food descriptions through the
// Nutritionix natural nutrients endpoint.
type NutritionixProvider struct {
	BaseURL string
	AppID   string
	APIKey  string
	Client  *http.Client
}

func NewNutritionix(baseURL, appID, apiKey string) *NutritionixProvider {
	return &NutritionixProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		AppID:   appID,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: nutritionTimeout},
	}
}

func (p *NutritionixProvider) Name() string { return "nutritionix" }

type nutritionixResponse struct {
	Foods []struct {
		FoodName     string  `json:"food_name"`
		ServingGrams float64 `json:"serving_weight_grams"`
		Calories     float64 `json:"nf_calories"`
		Fat          float64 `json:"nf_total_fat"`
		Carbohydrate float64 `json:"nf_total_carbohydrate"`
		Sugars       float64 `json:"nf_sugars"`
		DietaryFiber float64 `json:"nf_dietary_fiber"`
		Protein      float64 `json:"nf_protein"`
	} `json:"foods"`
}

func (p *NutritionixProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	query := strings.TrimSpace(req.Text())
	if req.IsImage() || query == "" {
		return nil, fmt.Errorf("%w: nutritionix needs a text query", faults.ErrUnavailable)
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v2/natural/nutrients", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("nutritionix request: %w", stripURL(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-app-id", p.AppID)
	httpReq.Header.Set("x-app-key", p.APIKey)

	var parsed nutritionixResponse
	if err := doJSON(p.Client, "nutritionix", httpReq, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Foods) == 0 {
		return nil, fmt.Errorf("%w: no food matched %q", faults.ErrMalformed, query)
	}

	item := parsed.Foods[0]
	// values are per serving; scale to 100g when the weight is known
	scale := 1.0
	if item.ServingGrams > 0 {
		scale = 100 / item.ServingGrams
	}
	f := nutrients{
		Label:    item.FoodName,
		Calories: item.Calories * scale,
		Fat:      item.Fat * scale,
		Carbs:    item.Carbohydrate * scale,
		Sugar:    item.Sugars * scale,
		Fiber:    item.DietaryFiber * scale,
		Protein:  item.Protein * scale,
	}.findings(0.6)
	return &f, nil
}
