package config

import "github.com/hugo-lorenzo-mato/memwall/internal/core"

const (
	modelLlama = "llama3.1:8b"
	modelQwen  = "qwen2.5:14b"
)

// BuiltinCatalog returns the scenarios shipped with memwall.
func BuiltinCatalog() *Catalog {
	return NewCatalog(pmmScenario(), cesScenario())
}

func pmmScenario() ScenarioDef {
	return ScenarioDef{
		ID:          "pmm",
		Name:        "Competitive Intelligence",
		Description: "Competitor UI captures, research papers and social signals analysed for agentic architecture shifts.",
		Tiers: []TierDef{
			{
				Name:        "lite",
				Description: "Fits in unified memory without offload",
				Mix: []CategoryCount{
					{Category: core.CategoryCompetitor, Count: 3, AvgSizeKB: 6},
					{Category: core.CategoryPaper, Count: 10, AvgSizeKB: 48},
					{Category: core.CategorySocial, Count: 5, AvgSizeKB: 2},
				},
				MemoryTargetGB: 10,
			},
			{
				Name:        "large",
				Description: "Exceeds unified memory; crashes unless offload is enabled",
				Mix: []CategoryCount{
					{Category: core.CategoryCompetitor, Count: 12, AvgSizeKB: 6},
					{Category: core.CategoryPaper, Count: 234, AvgSizeKB: 48},
					{Category: core.CategorySocial, Count: 22, AvgSizeKB: 2},
				},
				MemoryTargetGB: 19,
				DocumentPacing: "150ms",
			},
		},
		CategoryLabels: map[string]string{
			core.CategoryCompetitor: "Loading competitor intelligence...",
			core.CategoryPaper:      "Indexing technical research papers...",
			core.CategorySocial:     "Monitoring Social Channels...",
			core.CategoryImage:      "Loading image data for visual analysis...",
		},
		Phases: []core.Phase{
			{
				ID:             "phase_1_review",
				Name:           "Document Review",
				TriggerPercent: 5,
				Model:          modelLlama,
				Agent:          "@Orchestrator",
				StepType:       core.StepPlan,
				Tools:          []string{"document_loader"},
				RelatedDocIDs:  []string{"Comp_UI_1", "Comp_UI_2"},
				SystemPrompt:   "You are the Orchestrator. Survey the available data and plan the analysis. Keep a high-level operational tone.",
				Prompt:         "Review the competitors, research papers and social signals provided. Briefly summarize which data sources are available for analysis.",
			},
			{
				ID:             "phase_2_patterns",
				Name:           "Pattern Detection",
				TriggerPercent: 15,
				Model:          modelQwen,
				Agent:          "@AI_Analyst",
				StepType:       core.StepThought,
				RelatedDocIDs:  []string{"Comp_UI_1", "Comp_UI_2", "Comp_Archive_X"},
				SystemPrompt:   "You are an expert UI analyst. Focus on visual patterns, interface elements and user experience changes.",
				Prompt:         "Analyze the competitor descriptions and UI changes. Which patterns appear across their interfaces and architectures? Name the competitors that show similar changes.",
			},
			{
				ID:             "phase_3_technical",
				Name:           "Technical Cross-Reference",
				TriggerPercent: 50,
				Model:          modelQwen,
				Agent:          "@Tech_Specialist",
				StepType:       core.StepAction,
				Tools:          []string{"rag_retriever"},
				RelatedDocIDs:  []string{"arXiv_2401.12847"},
				SystemPrompt:   "You are a chief software architect. Focus on infrastructure, agentic frameworks and technical feasibility.",
				Prompt:         "Cross-reference the UI patterns with the research papers. Do any papers describe agentic or multi-agent architectures that match what competitors are shipping?",
			},
			{
				ID:             "phase_4_social",
				Name:           "Social Signal Validation",
				TriggerPercent: 70,
				Model:          modelLlama,
				Agent:          "@Market_Researcher",
				StepType:       core.StepObservation,
				RelatedDocIDs:  []string{"Social_Signal_5", "Social_Signal_8"},
				SystemPrompt:   "You are a market researcher. Analyze sentiment and thought-leader opinion, looking for validation of technical trends.",
				Prompt:         "Check the posts from CTOs and product leaders. Do they corroborate the technical findings? What are they saying about AI agents?",
			},
			{
				ID:             "phase_5_synthesis",
				Name:           "Synthesis & Recommendations",
				TriggerPercent: 90,
				Model:          modelLlama,
				Agent:          "@Lead_Strategist",
				StepType:       core.StepThought,
				Tools:          []string{"report_generator"},
				SystemPrompt:   "You are the lead strategist. Turn the analyst, architect and researcher findings into a decisive executive recommendation.",
				Prompt:         "Synthesize the findings. How many competitors show strong evidence of a shift to agentic systems, and how strong is it? What should the product team do?",
				Final:          true,
			},
		},
	}
}

func cesScenario() ScenarioDef {
	return ScenarioDef{
		ID:          "ces2026",
		Name:        "CES 2026 Market Intelligence",
		Description: "Competitive dossiers, CES news, social threads and keynote transcripts.",
		Tiers: []TierDef{
			{
				Name: "standard",
				Mix: []CategoryCount{
					{Category: core.CategoryDocumentation, Count: 1, AvgSizeKB: 4},
					{Category: core.CategoryDossier, Count: 5, AvgSizeKB: 24},
					{Category: core.CategoryNews, Count: 10, AvgSizeKB: 8},
					{Category: core.CategorySocial, Count: 2, AvgSizeKB: 3},
					{Category: core.CategoryVideo, Count: 3, AvgSizeKB: 40},
				},
				MemoryTargetGB: 14,
			},
		},
		CategoryLabels: map[string]string{
			core.CategoryDocumentation: "Reading scenario briefing...",
			core.CategoryDossier:       "Loading Strategic Dossiers...",
			core.CategoryNews:          "Ingesting CES News Feed...",
			core.CategorySocial:        "Monitoring Social Channels...",
			core.CategoryVideo:         "Processing Video Transcripts...",
			core.CategoryImage:         "Loading image data for visual analysis...",
		},
		Phases: []core.Phase{
			{
				ID:             "phase_1_review",
				Name:           "Intelligence Briefing",
				TriggerPercent: 30,
				Model:          modelLlama,
				Agent:          "@Orchestrator",
				StepType:       core.StepPlan,
				Tools:          []string{"dossier_analysis"},
				RelatedDocIDs:  []string{"samsung_competitive_dossier", "silicon_motion_dossier"},
				SystemPrompt:   "You are the intelligence orchestrator. Summarize the strategic landscape from the dossiers. Be concise and threat-focused.",
				Prompt:         "Review the competitive dossiers and CES news. Summarize the key competitive threats they identify.",
			},
			{
				ID:             "phase_2_patterns",
				Name:           "Threat Vector Analysis",
				TriggerPercent: 50,
				Model:          modelQwen,
				Agent:          "@Hardware_Analyst",
				StepType:       core.StepThought,
				RelatedDocIDs:  []string{"intel_core_ultra", "amd_ryzen_ai"},
				SystemPrompt:   "You are a hardware architect. Read the specifications and look for memory constraints on local inference.",
				Prompt:         "Analyze the hardware announcements in the news. How do they affect the on-device memory bottleneck for AI PCs?",
			},
			{
				ID:             "phase_3_technical",
				Name:           "Video Signal Correlation",
				TriggerPercent: 85,
				Model:          modelQwen,
				Agent:          "@Media_Analyst",
				StepType:       core.StepAction,
				Tools:          []string{"video_transcript_analyzer"},
				RelatedDocIDs:  []string{"nvidia_keynote", "linus_review"},
				SystemPrompt:   "You are a media analyst. Extract quotes and sentiment from the transcripts that bear on memory limits.",
				Prompt:         "Correlate the keynote and review transcripts with the hardware trends. Do speakers discuss the memory wall or model size limits?",
			},
			{
				ID:             "phase_4_social",
				Name:           "User Sentiment Validation",
				TriggerPercent: 90,
				Model:          modelLlama,
				Agent:          "@Social_Researcher",
				StepType:       core.StepObservation,
				RelatedDocIDs:  []string{"reddit_localllama", "karpathy_tweet"},
				SystemPrompt:   "You are a user researcher. Validate technical findings against user pain points from social media.",
				Prompt:         "Check the community discussions. Are users hitting VRAM limits, and does that match the hardware constraints identified so far?",
			},
			{
				ID:             "phase_5_synthesis",
				Name:           "Strategic Recommendation",
				TriggerPercent: 95,
				Model:          modelLlama,
				Agent:          "@Lead_Strategist",
				StepType:       core.StepThought,
				Tools:          []string{"strategy_engine"},
				SystemPrompt:   "You are the chief strategy officer. Turn all intelligence into a go/no-go recommendation for the roadmap.",
				Prompt:         "Synthesize dossiers, hardware specs, video signals and user pain. Does the evidence support accelerating memory offload on the roadmap? Give a decisive recommendation.",
				Final:          true,
			},
		},
	}
}
