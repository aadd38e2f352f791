package embedding

import (
	"fmt"
	"math"

	"github.com/tutorstack/backend/pkg/common"
)

// maxL2Norm bounds the vector magnitude accepted from a provider. Normalized
// embedding models emit unit vectors; anything far beyond that indicates a
// corrupted response.
const maxL2Norm = 100.0

// ValidateVector checks an embedding before it is persisted: exact
// dimensionality, finite components, and an L2 norm within (0, 100].
func ValidateVector(vec []float32, dimensions int) error {
	if len(vec) != dimensions {
		return &common.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d dimensions, got %d", dimensions, len(vec)),
		}
	}

	var sum float64
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &common.ValidationError{
				Field:  "embedding",
				Reason: fmt.Sprintf("non-finite value at index %d", i),
			}
		}
		sum += f * f
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return &common.ValidationError{Field: "embedding", Reason: "zero vector"}
	}
	if norm > maxL2Norm {
		return &common.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("L2 norm %.2f exceeds %.0f", norm, maxL2Norm),
		}
	}
	return nil
}
