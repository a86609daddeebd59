package credits

import (
	"math"

	"github.com/sceneforge/sceneledger/internal/models"
)

// baseCosts maps each billable operation to its base credit price.
// Process-wide and immutable.
var baseCosts = map[models.OperationType]int64{
	models.OpScriptGeneration:    5,
	models.OpImageGeneration:     5,
	models.OpVideoGeneration:     20,
	models.OpThumbnailGeneration: 10,
	models.OpTitleAnalysis:       2,
	models.OpVideoAnalysis:       3,
	models.OpChannelMonitoring:   1,
	models.OpSceneImprovement:    2,
}

// minCost is the floor for any resolved cost: the smallest nonzero base
// price. Also the default for unknown operation types.
const minCost int64 = 1

// BaseCost returns the base price of an operation, or minCost for an
// unknown type.
func BaseCost(op models.OperationType) int64 {
	if c, ok := baseCosts[op]; ok {
		return c
	}
	return minCost
}

// CalculateCost resolves the credit price of an operation. A non-nil
// customAmount overrides the base price; the multiplier scales either one
// and the result is rounded up to a whole credit, never below minCost.
// Callers that treat a zero multiplier as "unset" must substitute 1 before
// calling; here zero is taken literally and floors at minCost, which keeps
// cost monotone in the multiplier.
func CalculateCost(op models.OperationType, customAmount *int64, multiplier float64) int64 {
	base := BaseCost(op)
	if customAmount != nil {
		base = *customAmount
	}
	cost := int64(math.Ceil(float64(base) * multiplier))
	if cost < minCost {
		return minCost
	}
	return cost
}
