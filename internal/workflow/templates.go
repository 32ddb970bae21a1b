package workflow

import (
	"strings"

	"github.com/jmolinaso/voxbridge/internal/classify"
)

// template is a predefined ordered step plan for a recurring compound task.
type template struct {
	steps            []templateStep
	complexity       Complexity
	estimatedSeconds float64
	keywords         []string
}

type templateStep struct {
	command  string
	category classify.Category
}

var templates = map[string]template{
	"document_creation": {
		steps: []templateStep{
			{"gather_document_requirements", classify.CategoryDocument},
			{"create_document_outline", classify.CategoryDocument},
			{"generate_document_content", classify.CategoryDocument},
			{"format_document", classify.CategoryDocument},
			{"review_and_finalize", classify.CategoryDocument},
		},
		complexity:       ComplexitySequential,
		estimatedSeconds: 120,
		keywords:         []string{"create document", "generate report", "write document"},
	},
	"email_campaign": {
		steps: []templateStep{
			{"define_email_audience", classify.CategoryEmail},
			{"create_email_template", classify.CategoryEmail},
			{"personalize_email_content", classify.CategoryEmail},
			{"schedule_email_delivery", classify.CategoryEmail},
			{"track_email_metrics", classify.CategoryEmail},
		},
		complexity:       ComplexitySequential,
		estimatedSeconds: 90,
		keywords:         []string{"email campaign", "send emails", "mass email"},
	},
	"meeting_coordination": {
		steps: []templateStep{
			{"identify_meeting_participants", classify.CategoryCalendar},
			{"find_available_time_slots", classify.CategoryCalendar},
			{"send_meeting_invites", classify.CategoryCalendar},
			{"prepare_meeting_agenda", classify.CategoryDocument},
			{"setup_meeting_room", classify.CategorySystem},
		},
		complexity:       ComplexitySequential,
		estimatedSeconds: 60,
		keywords:         []string{"schedule meeting", "coordinate meeting", "organize meeting"},
	},
	"research_compilation": {
		steps: []templateStep{
			{"define_research_scope", classify.CategoryWebSearch},
			{"conduct_web_research", classify.CategoryWebSearch},
			{"analyze_research_findings", classify.CategoryConversation},
			{"compile_research_report", classify.CategoryDocument},
			{"create_presentation_summary", classify.CategoryDocument},
		},
		complexity:       ComplexitySequential,
		estimatedSeconds: 180,
		keywords:         []string{"research", "compile information", "gather data"},
	},
}

// templateOrder fixes the matching order so overlapping keywords resolve
// deterministically.
var templateOrder = []string{
	"document_creation",
	"email_campaign",
	"meeting_coordination",
	"research_compilation",
}

// MatchTemplate returns the name of the first template whose keywords
// appear in text, or empty.
func MatchTemplate(text string) string {
	lower := strings.ToLower(text)
	for _, name := range templateOrder {
		for _, kw := range templates[name].keywords {
			if strings.Contains(lower, kw) {
				return name
			}
		}
	}
	return ""
}

// TemplateNames lists the template catalog in matching order.
func TemplateNames() []string {
	return append([]string(nil), templateOrder...)
}
