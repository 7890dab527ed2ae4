package trial

import (
	"fmt"
	"strings"
)

// TrialDocument is the canonical normalized form of one registry study.
// NCTID is the stable identity; re-ingesting the same id replaces the
// previous document everywhere.
type TrialDocument struct {
	NCTID          string   `json:"nct_id" db:"nct_id"`
	Title          string   `json:"title" db:"title"`
	OfficialTitle  string   `json:"official_title,omitempty" db:"official_title"`
	Organization   string   `json:"organization,omitempty" db:"organization"`
	Status         string   `json:"status" db:"status"`
	WhyStopped     string   `json:"why_stopped,omitempty" db:"why_stopped"`
	Phase          string   `json:"phase" db:"phase"`
	StudyType      string   `json:"study_type" db:"study_type"`
	Sponsor        string   `json:"sponsor,omitempty" db:"sponsor"`
	Conditions     []string `json:"conditions,omitempty" db:"-"`
	StartDate      string   `json:"start_date,omitempty" db:"start_date"`
	CompletionDate string   `json:"completion_date,omitempty" db:"completion_date"`
	LastUpdate     string   `json:"last_update,omitempty" db:"last_update"`
	Enrollment     int      `json:"enrollment,omitempty" db:"enrollment"`
	FullText       string   `json:"full_text" db:"full_text"`
}

// Chunk is a bounded passage of one document's FullText, the unit of
// embedding and retrieval. The id is derived from the trial id and the
// position, so identical text always produces identical ids.
type Chunk struct {
	ID        string `json:"id"`
	TrialID   string `json:"trial_id"`
	Position  int    `json:"position"`
	Text      string `json:"text"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status,omitempty"`
	Phase     string `json:"phase,omitempty"`
	StudyType string `json:"study_type,omitempty"`
	StartDate string `json:"start_date,omitempty"`
}

// ChunkID builds the deterministic chunk identifier for a trial and position.
func ChunkID(trialID string, position int) string {
	trialID = strings.TrimSpace(trialID)
	if trialID == "" {
		trialID = "unknown"
	}
	return fmt.Sprintf("%s:%d", trialID, position)
}

// RawStudy mirrors the registry's v2 study payload. Only the modules the
// normalizer consumes are declared; everything else in the payload is
// dropped during decoding.
type RawStudy struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID         string `json:"nctId"`
			BriefTitle    string `json:"briefTitle"`
			OfficialTitle string `json:"officialTitle"`
			Organization  struct {
				FullName string `json:"fullName"`
			} `json:"organization"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			WhyStopped      string `json:"whyStopped"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			CompletionDateStruct struct {
				Date string `json:"date"`
			} `json:"completionDateStruct"`
			LastUpdatePostDateStruct struct {
				Date string `json:"date"`
			} `json:"lastUpdatePostDateStruct"`
		} `json:"statusModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
			Collaborators []struct {
				Name string `json:"name"`
			} `json:"collaborators"`
		} `json:"sponsorCollaboratorsModule"`
		DescriptionModule struct {
			BriefSummary        string `json:"briefSummary"`
			DetailedDescription string `json:"detailedDescription"`
		} `json:"descriptionModule"`
		ConditionsModule struct {
			Conditions []string `json:"conditions"`
		} `json:"conditionsModule"`
		DesignModule struct {
			StudyType      string   `json:"studyType"`
			Phases         []string `json:"phases"`
			EnrollmentInfo struct {
				Count int `json:"count"`
			} `json:"enrollmentInfo"`
			DesignInfo struct {
				Allocation        string `json:"allocation"`
				InterventionModel string `json:"interventionModel"`
				PrimaryPurpose    string `json:"primaryPurpose"`
			} `json:"designInfo"`
		} `json:"designModule"`
		ArmsInterventionsModule struct {
			Interventions []struct {
				Type        string `json:"type"`
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
		OutcomesModule struct {
			PrimaryOutcomes   []RawOutcome `json:"primaryOutcomes"`
			SecondaryOutcomes []RawOutcome `json:"secondaryOutcomes"`
		} `json:"outcomesModule"`
		EligibilityModule struct {
			EligibilityCriteria string `json:"eligibilityCriteria"`
			Sex                 string `json:"sex"`
			MinimumAge          string `json:"minimumAge"`
			MaximumAge          string `json:"maximumAge"`
			HealthyVolunteers   bool   `json:"healthyVolunteers"`
		} `json:"eligibilityModule"`
	} `json:"protocolSection"`
}

// RawOutcome is one entry of the registry outcomes module.
type RawOutcome struct {
	Measure     string `json:"measure"`
	TimeFrame   string `json:"timeFrame"`
	Description string `json:"description"`
}
