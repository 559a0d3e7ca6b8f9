// Package dex assembles the classifiers of every supported protocol.
package dex

import (
	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/internal/dex/balancerv1"
	"github.com/devlongs/mev-inspect/internal/dex/balancerv2"
	"github.com/devlongs/mev-inspect/internal/dex/erc20"
	"github.com/devlongs/mev-inspect/internal/dex/uniswapv2"
	"github.com/devlongs/mev-inspect/internal/dex/uniswapv3"
)

var sources = []func() ([]classifier.Classifier, error){
	uniswapv2.Classifiers,
	uniswapv3.Classifiers,
	balancerv1.Classifiers,
	balancerv2.Classifiers,
	erc20.Classifiers,
}

// Registry returns a registry holding every supported classifier
func Registry() (*classifier.Registry, error) {
	var all []classifier.Classifier
	for _, source := range sources {
		cs, err := source()
		if err != nil {
			return nil, err
		}
		all = append(all, cs...)
	}
	return classifier.NewRegistry(all...)
}
