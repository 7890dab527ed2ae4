package trial

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trialscope/trialscope/internal/common"
)

// ErrMalformedRecord marks a registry record that cannot be normalized.
// Callers skip the record and continue the batch.
var ErrMalformedRecord = errors.New("malformed trial record")

// Normalize maps one raw registry study onto the canonical document schema.
// Fields the schema does not recognize were already dropped during JSON
// decoding; a record without an NCT id is malformed.
func Normalize(raw RawStudy) (TrialDocument, error) {
	protocol := raw.ProtocolSection
	nctID := strings.TrimSpace(protocol.IdentificationModule.NCTID)
	if nctID == "" {
		return TrialDocument{}, fmt.Errorf("%w: missing nct id", ErrMalformedRecord)
	}
	doc := TrialDocument{
		NCTID:          nctID,
		Title:          CleanText(protocol.IdentificationModule.BriefTitle),
		OfficialTitle:  CleanText(protocol.IdentificationModule.OfficialTitle),
		Organization:   strings.TrimSpace(protocol.IdentificationModule.Organization.FullName),
		Status:         strings.TrimSpace(protocol.StatusModule.OverallStatus),
		WhyStopped:     CleanText(protocol.StatusModule.WhyStopped),
		Phase:          strings.Join(protocol.DesignModule.Phases, ", "),
		StudyType:      strings.TrimSpace(protocol.DesignModule.StudyType),
		Sponsor:        strings.TrimSpace(protocol.SponsorCollaboratorsModule.LeadSponsor.Name),
		StartDate:      strings.TrimSpace(protocol.StatusModule.StartDateStruct.Date),
		CompletionDate: strings.TrimSpace(protocol.StatusModule.CompletionDateStruct.Date),
		LastUpdate:     strings.TrimSpace(protocol.StatusModule.LastUpdatePostDateStruct.Date),
		Enrollment:     protocol.DesignModule.EnrollmentInfo.Count,
	}
	for _, condition := range protocol.ConditionsModule.Conditions {
		cleaned := CleanText(condition)
		if cleaned != "" {
			doc.Conditions = append(doc.Conditions, cleaned)
		}
	}
	doc.FullText = buildFullText(raw, doc)
	return doc, nil
}

// NormalizeBatch normalizes every record it can, logging and skipping the
// rest. One bad record never aborts the batch.
func NormalizeBatch(raws []RawStudy) []TrialDocument {
	logger := common.Logger()
	docs := make([]TrialDocument, 0, len(raws))
	for idx, raw := range raws {
		doc, err := Normalize(raw)
		if err != nil {
			logger.Warn("trial: skipping record", "index", idx, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// buildFullText renders the free-text fields into one deterministic block.
// The layout is stable so chunk boundaries stay stable across re-ingestion.
func buildFullText(raw RawStudy, doc TrialDocument) string {
	protocol := raw.ProtocolSection
	var b strings.Builder
	writeField := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\n")
	}
	writeField("Title", doc.Title)
	writeField("Official Title", doc.OfficialTitle)
	writeField("NCT ID", doc.NCTID)
	writeField("Organization", doc.Organization)
	writeField("Status", doc.Status)
	writeField("Start Date", FormatDate(doc.StartDate))
	writeField("Completion Date", FormatDate(doc.CompletionDate))
	writeField("Why Stopped", doc.WhyStopped)
	writeField("Study Type", doc.StudyType)
	writeField("Phase", doc.Phase)
	writeField("Allocation", protocol.DesignModule.DesignInfo.Allocation)
	writeField("Intervention Model", protocol.DesignModule.DesignInfo.InterventionModel)
	writeField("Primary Purpose", protocol.DesignModule.DesignInfo.PrimaryPurpose)
	if doc.Enrollment > 0 {
		writeField("Enrollment", fmt.Sprint(doc.Enrollment))
	}
	writeField("Lead Sponsor", doc.Sponsor)
	if len(protocol.SponsorCollaboratorsModule.Collaborators) > 0 {
		names := make([]string, 0, len(protocol.SponsorCollaboratorsModule.Collaborators))
		for _, collaborator := range protocol.SponsorCollaboratorsModule.Collaborators {
			if name := strings.TrimSpace(collaborator.Name); name != "" {
				names = append(names, name)
			}
		}
		writeField("Collaborators", strings.Join(names, ", "))
	}
	writeField("Conditions", strings.Join(doc.Conditions, ", "))
	writeField("Brief Summary", CleanText(protocol.DescriptionModule.BriefSummary))
	writeField("Detailed Description", CleanText(protocol.DescriptionModule.DetailedDescription))
	for idx, intervention := range protocol.ArmsInterventionsModule.Interventions {
		label := fmt.Sprintf("Intervention %d", idx+1)
		parts := make([]string, 0, 3)
		if t := strings.TrimSpace(intervention.Type); t != "" {
			parts = append(parts, t)
		}
		if name := strings.TrimSpace(intervention.Name); name != "" {
			parts = append(parts, name)
		}
		if desc := CleanText(intervention.Description); desc != "" {
			parts = append(parts, desc)
		}
		writeField(label, strings.Join(parts, " - "))
	}
	writeOutcomes(&b, "Primary Outcome", protocol.OutcomesModule.PrimaryOutcomes)
	writeOutcomes(&b, "Secondary Outcome", protocol.OutcomesModule.SecondaryOutcomes)
	writeField("Eligibility Criteria", CleanText(protocol.EligibilityModule.EligibilityCriteria))
	writeField("Sex", protocol.EligibilityModule.Sex)
	writeField("Minimum Age", protocol.EligibilityModule.MinimumAge)
	writeField("Maximum Age", protocol.EligibilityModule.MaximumAge)
	if protocol.EligibilityModule.HealthyVolunteers {
		writeField("Healthy Volunteers", "accepted")
	}
	return strings.TrimSpace(b.String())
}

func writeOutcomes(b *strings.Builder, label string, outcomes []RawOutcome) {
	for idx, outcome := range outcomes {
		parts := make([]string, 0, 3)
		if measure := CleanText(outcome.Measure); measure != "" {
			parts = append(parts, measure)
		}
		if frame := strings.TrimSpace(outcome.TimeFrame); frame != "" {
			parts = append(parts, "time frame "+frame)
		}
		if desc := CleanText(outcome.Description); desc != "" {
			parts = append(parts, desc)
		}
		if len(parts) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("%s %d: %s\n", label, idx+1, strings.Join(parts, " - ")))
	}
}
