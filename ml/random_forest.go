package ml

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForest averages the leaf probabilities of bootstrap-trained trees.
type RandomForest struct {
	NTrees   int             `json:"n_trees"`
	MaxDepth int             `json:"max_depth"`
	Seed     int64           `json:"seed"`
	Trees    []*DecisionTree `json:"trees"`
}

func NewRandomForest(nTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{NTrees: nTrees, MaxDepth: maxDepth, Seed: seed}
}

func (rf *RandomForest) Name() string {
	return "Random Forest"
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := validateTrainingSet(features, labels); err != nil {
		return err
	}
	if rf.NTrees <= 0 {
		rf.NTrees = 100
	}
	if rf.MaxDepth <= 0 {
		rf.MaxDepth = 10
	}

	rng := rand.New(rand.NewSource(rf.Seed))
	maxFeatures := int(math.Max(1, math.Floor(math.Sqrt(float64(len(features[0]))))))

	rf.Trees = make([]*DecisionTree, 0, rf.NTrees)
	n := len(features)
	for t := 0; t < rf.NTrees; t++ {
		sampleX := make([][]float64, n)
		sampleY := make([]int, n)
		for i := 0; i < n; i++ {
			idx := rng.Intn(n)
			sampleX[i] = features[idx]
			sampleY[i] = labels[idx]
		}
		tree := &DecisionTree{MaxDepth: rf.MaxDepth, MaxFeatures: maxFeatures, rng: rng}
		if err := tree.Train(sampleX, sampleY); err != nil {
			return err
		}
		tree.rng = nil
		rf.Trees = append(rf.Trees, tree)
	}
	return nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	sum := 0.0
	for _, tree := range rf.Trees {
		proba, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		sum += proba[ClassMalignant]
	}
	return binaryProba(sum / float64(len(rf.Trees))), nil
}
