package model

import "fmt"

// archNames maps encoder components to checkpoint tensor names.
type archNames struct {
	wordEmbeddings      string
	positionEmbeddings  string // empty when positions come from attention bias
	tokenTypeEmbeddings string
	embeddingsNorm      string

	query    func(layer int) string
	key      func(layer int) string
	value    func(layer int) string
	attnOut  func(layer int) string
	attnNorm func(layer int) string

	// bert feed-forward
	intermediate func(layer int) string
	output       func(layer int) string
	outputNorm   func(layer int) string

	// jinabert gated feed-forward
	gated   func(layer int) string
	wo      func(layer int) string
	mlpNorm func(layer int) string
}

func layerName(format string) func(int) string {
	return func(layer int) string { return fmt.Sprintf(format, layer) }
}

var bertNames = archNames{
	wordEmbeddings:      "embeddings.word_embeddings.weight",
	positionEmbeddings:  "embeddings.position_embeddings.weight",
	tokenTypeEmbeddings: "embeddings.token_type_embeddings.weight",
	embeddingsNorm:      "embeddings.LayerNorm",

	query:    layerName("encoder.layer.%d.attention.self.query"),
	key:      layerName("encoder.layer.%d.attention.self.key"),
	value:    layerName("encoder.layer.%d.attention.self.value"),
	attnOut:  layerName("encoder.layer.%d.attention.output.dense"),
	attnNorm: layerName("encoder.layer.%d.attention.output.LayerNorm"),

	intermediate: layerName("encoder.layer.%d.intermediate.dense"),
	output:       layerName("encoder.layer.%d.output.dense"),
	outputNorm:   layerName("encoder.layer.%d.output.LayerNorm"),
}

var jinaBertNames = func() archNames {
	n := bertNames
	n.positionEmbeddings = ""
	n.intermediate, n.output, n.outputNorm = nil, nil, nil
	n.gated = layerName("encoder.layer.%d.mlp.gated_layers")
	n.wo = layerName("encoder.layer.%d.mlp.wo")
	n.mlpNorm = layerName("encoder.layer.%d.mlp.layernorm")
	return n
}()
