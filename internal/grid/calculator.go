// Package grid computes the price/size ladder of a one-sided grid.
package grid

import (
	"fmt"

	"futures-grid-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places kept by every division.
const Precision int32 = 16

// Summary holds the derived values shown above a grid preview.
type Summary struct {
	Params             models.GridParameters
	Step               decimal.Decimal
	InvestmentPerLevel decimal.Decimal
	MaxNotional        decimal.Decimal
}

// Validate checks the grid preconditions and reports the first one violated.
func Validate(p models.GridParameters) error {
	switch {
	case !p.LowerPrice.IsPositive():
		return fmt.Errorf("%w: lower price must be positive", models.ErrInvalidParameters)
	case p.UpperPrice.LessThanOrEqual(p.LowerPrice):
		return fmt.Errorf("%w: upper price must be greater than lower price", models.ErrInvalidParameters)
	case p.GridCount < 2:
		return fmt.Errorf("%w: number of grids must be at least 2", models.ErrInvalidParameters)
	case !p.TotalInvestment.IsPositive():
		return fmt.Errorf("%w: total investment must be positive", models.ErrInvalidParameters)
	case p.Leverage < 1:
		return fmt.Errorf("%w: leverage must be at least 1", models.ErrInvalidParameters)
	case p.Direction != models.DirectionLong && p.Direction != models.DirectionShort:
		return fmt.Errorf("%w: direction must be Long or Short", models.ErrInvalidParameters)
	}
	if step(p).IsZero() {
		return fmt.Errorf("%w: price range too narrow for %d grids", models.ErrInvalidParameters, p.GridCount)
	}
	return nil
}

// Summarize validates p and returns the per-grid figures without building the levels.
func Summarize(p models.GridParameters) (Summary, error) {
	if err := Validate(p); err != nil {
		return Summary{}, err
	}
	return Summary{
		Params:             p,
		Step:               step(p),
		InvestmentPerLevel: perLevel(p),
		MaxNotional:        p.TotalInvestment.Mul(decimal.NewFromInt(int64(p.Leverage))),
	}, nil
}

// Calculate returns GridCount levels ordered from UpperPrice down to LowerPrice.
// Every level carries the same share of the investment, so sizes grow as price falls.
func Calculate(p models.GridParameters) ([]models.GridLevel, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	st := step(p)
	notional := perLevel(p).Mul(decimal.NewFromInt(int64(p.Leverage)))
	side := p.Direction.Side()

	levels := make([]models.GridLevel, 0, p.GridCount)
	for i := 0; i < p.GridCount; i++ {
		price := p.UpperPrice.Sub(st.Mul(decimal.NewFromInt(int64(i))))
		if i == p.GridCount-1 {
			// 最后一档固定为下限，避免步长舍入造成的偏差
			price = p.LowerPrice
		}
		levels = append(levels, models.GridLevel{
			Index:  i,
			Price:  price,
			Size:   notional.DivRound(price, Precision),
			Side:   side,
			Status: models.LevelPending,
		})
	}
	return levels, nil
}

// EstimateFee is the fee charged for filling size at price with the given rate.
func EstimateFee(price, size, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(size).Mul(rate)
}

func step(p models.GridParameters) decimal.Decimal {
	return p.UpperPrice.Sub(p.LowerPrice).DivRound(decimal.NewFromInt(int64(p.GridCount-1)), Precision)
}

func perLevel(p models.GridParameters) decimal.Decimal {
	return p.TotalInvestment.DivRound(decimal.NewFromInt(int64(p.GridCount)), Precision)
}
