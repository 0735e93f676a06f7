package processor

import (
	"context"
	"fmt"
	"math"

	"github.com/arcfield/tessera/raster"
	"github.com/arcfield/tessera/utils"
)

// IndexEngine evaluates band-arithmetic expressions over a composite,
// producing one derived band per index. A pixel is skipped for an index
// when any band the expression references is no-data there; non-finite
// evaluation results (division by a zero denominator) also come out as
// no-data.
type IndexEngine struct {
	TileRows    int
	Concurrency int
}

func NewIndexEngine(tileRows, concurrency int) *IndexEngine {
	return &IndexEngine{TileRows: tileRows, Concurrency: concurrency}
}

// ComputeIndices evaluates the configured expressions against r's bands.
func (e *IndexEngine) ComputeIndices(ctx context.Context, r *raster.Raster, indices []utils.IndexConfig) (*raster.Raster, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("no index expressions: %w", ErrEmptySelection)
	}

	exprTexts := make([]string, len(indices))
	names := make([]string, len(indices))
	for i, index := range indices {
		exprTexts[i] = index.Expr
		names[i] = index.Name
	}
	bandExpr, err := utils.ParseBandExpressions(exprTexts)
	if err != nil {
		return nil, err
	}
	bandExpr.ExprNames = names

	nameIdx := make(map[string]int, len(r.Bands))
	for bi := range r.Bands {
		nameIdx[r.Bands[bi].Name] = bi
	}
	varBand := make(map[string]int, len(bandExpr.VarList))
	for _, variable := range bandExpr.VarList {
		bi, ok := nameIdx[variable]
		if !ok {
			return nil, fmt.Errorf("expression variable %q is not a band of %v: %w",
				variable, r.BandNames(), ErrBandCountMismatch)
		}
		varBand[variable] = bi
	}

	out := raster.New(r.Grid, names, raster.DefaultNoData)
	err = RunTiles(ctx, SplitTiles(r.Grid, e.TileRows), e.Concurrency, func(t Tile) error {
		parameters := make(map[string]interface{}, len(bandExpr.VarList))
		valid := make(map[string]bool, len(bandExpr.VarList))
		for idx := t.Lo; idx < t.Hi; idx++ {
			for _, variable := range bandExpr.VarList {
				band := &r.Bands[varBand[variable]]
				v := band.Data[idx]
				if band.IsNoData(v) {
					valid[variable] = false
					continue
				}
				valid[variable] = true
				parameters[variable] = v
			}

			for ix, expr := range bandExpr.Expressions {
				noData := false
				for _, variable := range bandExpr.ExprVarRef[ix] {
					if !valid[variable] {
						noData = true
						break
					}
				}
				if noData {
					continue
				}

				result, err := expr.Evaluate(parameters)
				if err != nil {
					return fmt.Errorf("Eval '%v' error: %v", bandExpr.ExprText[ix], err)
				}
				val, ok := result.(float32)
				if !ok {
					return fmt.Errorf("Failed to cast eval result '%v' to float32, %v", result, bandExpr.ExprText[ix])
				}
				if f := float64(val); !math.IsNaN(f) && !math.IsInf(f, 0) {
					out.Bands[ix].Data[idx] = f
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
