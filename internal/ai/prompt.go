package ai

import (
	"fmt"
	"strings"

	"github.com/xxxsen/chewie/internal/model"
)

var serviceNames = map[string]string{
	"kamino":   "Kamino Finance (Solana DeFi)",
	"aave":     "Aave (Multi-chain DeFi)",
	"compound": "Compound Finance (Ethereum DeFi)",
	"marinade": "Marinade Finance (Solana Liquid Staking)",
	"lido":     "Lido (Multi-chain Liquid Staking)",
	"uniswap":  "Uniswap (Ethereum DEX)",
	"curve":    "Curve Finance (Multi-chain Stableswap)",
	"convex":   "Convex Finance (Curve Optimizer)",
	"yearn":    "Yearn Finance (Yield Aggregator)",
	"maker":    "MakerDAO (Ethereum CDP)",
	"raydium":  "Raydium (Solana DEX)",
	"orca":     "Orca (Solana DEX)",
	"jupiter":  "Jupiter (Solana Aggregator)",
	"drift":    "Drift Protocol (Solana Perpetuals)",
	"mango":    "Mango Markets (Solana Trading)",
	"reflect":  "Reflect >> Autonomous money designed for the stablecoin era (Solana Defi)",
}

var shortNames = map[string]string{
	"kamino":   "Kamino Finance",
	"marinade": "Marinade Finance",
	"raydium":  "Raydium",
	"orca":     "Orca",
	"jupiter":  "Jupiter",
	"drift":    "Drift Protocol",
	"mango":    "Mango Markets",
	"reflect":  "Reflect",
}

var refusalPhrases = []string{
	"I can only answer questions about",
	"I'm a DeFi assistant",
	"can only help with",
	"Please ask me about DeFi",
	"visit their official website",
}

func ServiceName(scope string) string {
	if name, ok := serviceNames[strings.ToLower(scope)]; ok {
		return name
	}
	return scope + " DeFi"
}

func ShortServiceName(scope string) string {
	if name, ok := shortNames[strings.ToLower(scope)]; ok {
		return name
	}
	return strings.ToLower(scope) + " DeFi"
}

// RefusalAnswer is the fixed reply for questions about another protocol.
func RefusalAnswer(scope string) string {
	return fmt.Sprintf("I can only answer questions about %s, as I'm the assistant widget on their page. "+
		"For information about other protocols, please visit their official website.", ShortServiceName(scope))
}

func IsRefusal(answer string) bool {
	for _, phrase := range refusalPhrases {
		if strings.Contains(answer, phrase) {
			return true
		}
	}
	return false
}

func BuildSystemPrompt(queryType model.QueryType, scope string) string {
	name := ServiceName(scope)
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are Chewie AI assistant embedded as a browser extension widget on the %s website. ", name)
	fmt.Fprintf(&sb, "You are STRICTLY LIMITED to answering questions about %s ONLY.\n\n", name)
	sb.WriteString("CRITICAL RULES - FOLLOW EXACTLY:\n\n")
	sb.WriteString("1. PROTOCOL RESTRICTION:\n")
	fmt.Fprintf(&sb, "   - You can ONLY discuss %s\n", name)
	sb.WriteString("   - If the question mentions ANY other DeFi protocol name (Aave, Compound, Uniswap, Hyperliquid, etc.), you MUST refuse to answer\n")
	sb.WriteString("   - If asked about another protocol, respond EXACTLY:\n")
	fmt.Fprintf(&sb, "   \"I can only answer questions about %s, as I'm the assistant widget on their page. ", name)
	sb.WriteString("For information about other protocols, please visit their official website.\"\n\n")
	sb.WriteString("2. NON-DEFI TOPICS:\n")
	sb.WriteString("   - If the question is about weather, sports, politics, or any non-DeFi topic, respond:\n")
	sb.WriteString("   \"I'm a DeFi assistant and can only help with questions about decentralized finance. Please ask me about DeFi topics.\"\n\n")
	fmt.Fprintf(&sb, "3. VALID QUESTIONS (about %s only):\n", name)
	sb.WriteString("   - Provide concise, accurate answers (2-3 paragraphs max)\n")
	sb.WriteString("   - Use simple language and cite sources when available\n")
	fmt.Fprintf(&sb, "   - Focus exclusively on %s features, yields, and risks\n", name)
	sb.WriteString("   - NEVER mention, compare, or recommend other protocols\n\n")
	fmt.Fprintf(&sb, "REMEMBER: You are on the %s website. Do NOT provide information about any other protocol.", name)

	switch queryType {
	case model.QueryTypeEarnings:
		sb.WriteString("\nFor earnings queries:\n")
		sb.WriteString("- Clearly state the APR and calculated earnings\n")
		sb.WriteString("- Mention that rates are variable and subject to change\n")
		sb.WriteString("- Briefly note key risks (smart contract, market volatility)\n")
	case model.QueryTypeRisk:
		sb.WriteString("\nFor risk queries:\n")
		sb.WriteString("- Be transparent about risks\n")
		sb.WriteString("- Mention smart contract audits if available\n")
		sb.WriteString("- Explain impermanent loss, liquidation risks where relevant\n")
	}
	return sb.String()
}

func BuildUserPrompt(query string, contextText string, scope string) string {
	if contextText == "" {
		return "User question: " + query
	}
	return fmt.Sprintf("Context from %s documentation:\n\n%s\n\nUser question: %s\n\nPlease answer based on the provided context.",
		scope, contextText, query)
}

func buildFollowupPrompt(query string, answer string, count int) string {
	return fmt.Sprintf("Original question: %s\n\nAnswer provided: %s\n\nGenerate %d relevant follow-up questions that a user "+
		"might ask next. Return only the questions, one per line.", query, answer, count)
}

// isReasoningModel reports models that spend part of the token budget on
// hidden reasoning.
func isReasoningModel(model string) bool {
	return strings.Contains(model, "o1-") || strings.Contains(model, "o3-") || strings.Contains(model, "gpt-5")
}
