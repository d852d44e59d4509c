// Package compare builds a side-by-side view of aggregated benefit records:
// benefits grouped by type across cards, a confidence-based pick, and the
// talking points a reviewer starts from. It is read-only; callers load the
// records and nothing here touches the store.
package compare

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/cardlens/benefit-cli/internal/model"
)

// Input pairs one raw record with its aggregated benefits.
type Input struct {
	Raw *model.RawRecord
	Rec *model.BenefitRecord
}

// Card summarizes one side of the comparison.
type Card struct {
	RecordID       string  `json:"record_id"`
	BankName       string  `json:"bank_name,omitempty"`
	CardName       string  `json:"card_name,omitempty"`
	Benefits       int     `json:"benefits"`
	HighConfidence int     `json:"high_confidence"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// TypeComparison lists, for one benefit type, the benefit titles each record
// offers. A record absent from ByRecord has nothing of that type.
type TypeComparison struct {
	Type     string              `json:"type"`
	ByRecord map[string][]string `json:"by_record"`
}

// Result is the full side-by-side analysis.
type Result struct {
	Cards           []Card           `json:"cards"`
	Types           []TypeComparison `json:"types"`
	Winner          string           `json:"winner,omitempty"`
	Summary         string           `json:"summary"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// Run compares two or more records. Cards follow the input order; Types are
// sorted by name so the same records always produce the same view. Winner is
// the record with the best mean confidence, empty when no record has any
// scored benefit.
func Run(inputs []Input) (*Result, error) {
	if len(inputs) < 2 {
		return nil, eris.New("compare: need at least two records")
	}

	res := &Result{}
	byType := make(map[string]map[string][]string)

	best := 0.0
	for _, in := range inputs {
		if in.Raw == nil || in.Rec == nil {
			return nil, eris.New("compare: input missing its record")
		}

		card := Card{
			RecordID: in.Raw.ID,
			BankName: in.Raw.BankName,
			CardName: in.Raw.CardName,
			Benefits: len(in.Rec.Benefits),
		}
		var sum float64
		for _, b := range in.Rec.Benefits {
			sum += b.Confidence
			if b.ConfidenceLevel == model.ConfidenceHigh {
				card.HighConfidence++
			}
			perRecord := byType[b.Type]
			if perRecord == nil {
				perRecord = make(map[string][]string)
				byType[b.Type] = perRecord
			}
			perRecord[card.RecordID] = append(perRecord[card.RecordID], b.Title)
		}
		if card.Benefits > 0 {
			card.MeanConfidence = sum / float64(card.Benefits)
		}
		if card.MeanConfidence > best {
			best = card.MeanConfidence
			res.Winner = card.RecordID
		}
		res.Cards = append(res.Cards, card)
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		res.Types = append(res.Types, TypeComparison{Type: t, ByRecord: byType[t]})
	}

	res.Summary = fmt.Sprintf("Compared %d cards across %d benefit types.",
		len(res.Cards), len(res.Types))
	for _, c := range res.Cards {
		if c.Benefits > 5 {
			res.Recommendations = append(res.Recommendations,
				fmt.Sprintf("%s offers a wide range of %d benefits", cardLabel(c), c.Benefits))
		}
	}
	return res, nil
}

func cardLabel(c Card) string {
	switch {
	case c.CardName != "":
		return c.CardName
	case c.BankName != "":
		return c.BankName
	}
	return c.RecordID
}
