package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
)

// OpenFoodFactsProvider resolves a product barcode against the Open Food
// Facts database.
type OpenFoodFactsProvider struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

func NewOpenFoodFacts(baseURL, userAgent string) *OpenFoodFactsProvider {
	return &OpenFoodFactsProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: nutritionTimeout},
	}
}

func (p *OpenFoodFactsProvider) Name() string { return "openfoodfacts" }

type offResponse struct {
	Status  int `json:"status"`
	Product *struct {
		ProductName     string             `json:"product_name"`
		IngredientsText string             `json:"ingredients_text"`
		NovaGroup       model.Score        `json:"nova_group"`
		Nutriments      map[string]float64 `json:"nutriments"`
	} `json:"product"`
}

func (p *OpenFoodFactsProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	code, ok := req.Barcode()
	if !ok {
		return nil, fmt.Errorf("%w: openfoodfacts needs a barcode", faults.ErrUnavailable)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/v2/product/"+code+".json", nil)
	if err != nil {
		return nil, fmt.Errorf("openfoodfacts request: %w", stripURL(err))
	}
	httpReq.Header.Set("User-Agent", p.UserAgent)

	var parsed offResponse
	if err := doJSON(p.Client, "openfoodfacts", httpReq, &parsed); err != nil {
		return nil, err
	}
	if parsed.Status != 1 || parsed.Product == nil {
		return nil, fmt.Errorf("%w: no product for barcode %s", faults.ErrMalformed, code)
	}

	prod := parsed.Product
	n := prod.Nutriments
	f := nutrients{
		Label:       prod.ProductName,
		Calories:    n["energy-kcal_100g"],
		Fat:         n["fat_100g"],
		Carbs:       n["carbohydrates_100g"],
		Sugar:       n["sugars_100g"],
		Fiber:       n["fiber_100g"],
		Protein:     n["proteins_100g"],
		Tier:        int(prod.NovaGroup),
		Ingredients: splitIngredients(prod.IngredientsText, ","),
	}.findings(0.8)
	return &f, nil
}
