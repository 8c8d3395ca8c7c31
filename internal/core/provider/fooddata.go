package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
)

// FoodDataProvider searches USDA FoodData Central by food name.
type FoodDataProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewFoodData(baseURL, apiKey string) *FoodDataProvider {
	return &FoodDataProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: nutritionTimeout},
	}
}

func (p *FoodDataProvider) Name() string { return "fooddata" }

type fdcNutrient struct {
	NutrientName string  `json:"nutrientName"`
	UnitName     string  `json:"unitName"`
	Value        float64 `json:"value"`
}

type fdcResponse struct {
	Foods []struct {
		Description   string        `json:"description"`
		Ingredients   string        `json:"ingredients"`
		FoodNutrients []fdcNutrient `json:"foodNutrients"`
	} `json:"foods"`
}

func (p *FoodDataProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	query := strings.TrimSpace(req.Text())
	if req.IsImage() || query == "" {
		return nil, fmt.Errorf("%w: fooddata needs a text query", faults.ErrUnavailable)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("api_key", p.APIKey)
	params.Set("pageSize", "1")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/fdc/v1/foods/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("fooddata request: %w", stripURL(err))
	}

	var parsed fdcResponse
	if err := doJSON(p.Client, "fooddata", httpReq, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Foods) == 0 {
		return nil, fmt.Errorf("%w: no food matched %q", faults.ErrMalformed, query)
	}

	food := parsed.Foods[0]
	n := nutrients{
		Label:       food.Description,
		Ingredients: splitIngredients(food.Ingredients, ","),
	}
	// search results report nutrients per 100g
	for _, fn := range food.FoodNutrients {
		switch fn.NutrientName {
		case "Energy":
			if strings.EqualFold(fn.UnitName, "KCAL") || fn.UnitName == "" {
				n.Calories = fn.Value
			}
		case "Total lipid (fat)":
			n.Fat = fn.Value
		case "Carbohydrate, by difference":
			n.Carbs = fn.Value
		case "Sugars, total including NLEA", "Sugars, total":
			n.Sugar = fn.Value
		case "Fiber, total dietary":
			n.Fiber = fn.Value
		case "Protein":
			n.Protein = fn.Value
		}
	}
	f := n.findings(0.7)
	return &f, nil
}
