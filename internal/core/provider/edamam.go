package provider

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/agenthands/bioguard/internal/core/faults"
	"github.com/agenthands/bioguard/internal/core/model"
)

// EdamamProvider looks a food up in the Edamam food database. Text requests
// go to the parser, images to the vision endpoint.
type EdamamProvider struct {
	BaseURL string
	AppID   string
	AppKey  string
	Client  *http.Client
}

func NewEdamam(baseURL, appID, appKey string) *EdamamProvider {
	return &EdamamProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		AppID:   appID,
		AppKey:  appKey,
		Client:  &http.Client{Timeout: nutritionTimeout},
	}
}

func (p *EdamamProvider) Name() string { return "edamam" }

type edamamFood struct {
	Label             string             `json:"label"`
	Category          string             `json:"category"`
	FoodContentsLabel string             `json:"foodContentsLabel"`
	Nutrients         map[string]float64 `json:"nutrients"`
}

func (f edamamFood) nutrients() nutrients {
	n := f.Nutrients
	return nutrients{
		Label:       f.Label,
		Calories:    n["ENERC_KCAL"],
		Fat:         n["FAT"],
		Carbs:       n["CHOCDF"],
		Sugar:       n["SUGAR"],
		Fiber:       n["FIBTG"],
		Protein:     n["PROCNT"],
		Ingredients: splitIngredients(f.FoodContentsLabel, ";"),
	}
}

type edamamResponse struct {
	Parsed []struct {
		Food edamamFood `json:"food"`
	} `json:"parsed"`
	Hints []struct {
		Food edamamFood `json:"food"`
	} `json:"hints"`
}

type edamamVisionResponse struct {
	Ingredients []struct {
		Parsed []struct {
			Food      string             `json:"food"`
			Nutrients map[string]float64 `json:"nutrients"`
		} `json:"parsed"`
	} `json:"ingredients"`
}

func (p *EdamamProvider) Analyze(ctx context.Context, req *model.Request) (*model.Findings, error) {
	if req.IsImage() {
		return p.vision(ctx, req)
	}
	query := strings.TrimSpace(req.Text())
	if query == "" {
		return nil, fmt.Errorf("%w: empty food query", faults.ErrMalformed)
	}

	params := p.auth()
	params.Set("ingr", query)
	params.Set("nutrition-type", "logging")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/food-database/v2/parser?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("edamam request: %w", stripURL(err))
	}

	var parsed edamamResponse
	if err := doJSON(p.Client, "edamam", httpReq, &parsed); err != nil {
		return nil, err
	}

	var food *edamamFood
	if len(parsed.Parsed) > 0 {
		food = &parsed.Parsed[0].Food
	} else if len(parsed.Hints) > 0 {
		food = &parsed.Hints[0].Food
	}
	if food == nil {
		return nil, fmt.Errorf("%w: no food matched %q", faults.ErrMalformed, query)
	}

	f := food.nutrients().findings(0.6)
	return &f, nil
}

func (p *EdamamProvider) vision(ctx context.Context, req *model.Request) (*model.Findings, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="capture"`)
	h.Set("Content-Type", req.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/food-database/v2/vision?"+p.auth().Encode(), &body)
	if err != nil {
		return nil, fmt.Errorf("edamam request: %w", stripURL(err))
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var parsed edamamVisionResponse
	if err := doJSON(p.Client, "edamam", httpReq, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Ingredients) == 0 || len(parsed.Ingredients[0].Parsed) == 0 {
		return nil, fmt.Errorf("%w: no food recognized in image", faults.ErrMalformed)
	}

	item := parsed.Ingredients[0].Parsed[0]
	food := edamamFood{Label: item.Food, Nutrients: item.Nutrients}
	f := food.nutrients().findings(0.5)
	return &f, nil
}

func (p *EdamamProvider) auth() url.Values {
	params := url.Values{}
	params.Set("app_id", p.AppID)
	params.Set("app_key", p.AppKey)
	return params
}
