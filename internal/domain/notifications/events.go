package notifications

import (
	"bytes"
	"fmt"
	"text/template"
)

type EventType string

const (
	EventTemplateCreated     EventType = "template_created"
	EventConsentWithdrawn    EventType = "consent_withdrawn"
	EventVendorCreated       EventType = "vendor_created"
	EventVendorApproved      EventType = "vendor_approved"
	EventVendorRejected      EventType = "vendor_rejected"
	EventDPAUploaded         EventType = "dpa_uploaded"
	EventDPAExpiring         EventType = "dpa_expiring"
	EventDPAExpired          EventType = "dpa_expired"
	EventBulkActionCompleted EventType = "bulk_action_completed"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

func mustMessage(event EventType, subject, body string) message {
	return message{
		subject: template.Must(template.New(string(event) + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(string(event) + ".body").Option("missingkey=zero").Parse(body)),
	}
}

var messages = map[EventType]message{
	EventTemplateCreated: mustMessage(EventTemplateCreated,
		"Consent template created: {{.template_name}}",
		"A new consent template was created.\n\nTemplate: {{.template_name}} ({{.template_id}})\nStatus: {{.status}}\nCreated by: {{.created_by}}\n"),
	EventConsentWithdrawn: mustMessage(EventConsentWithdrawn,
		"Consent withdrawn for template {{.template_id}}",
		"A data principal withdrew consent.\n\nRecord: {{.consent_id}}\nTemplate: {{.template_id}}\nUser reference: {{.user_reference_id}}\nWithdrawn by: {{.actor}}\n"),
	EventVendorCreated: mustMessage(EventVendorCreated,
		"New Vendor Added: {{.vendor_name}}",
		"New Vendor Registration\n\nVendor: {{.vendor_name}}\nCategory: {{.category}}\nContact: {{.contact_name}} ({{.contact_email}})\nStatus: Pending DPA\n\nNext steps: Upload and approve the Data Processing Agreement.\n"),
	EventVendorApproved: mustMessage(EventVendorApproved,
		"Vendor Approved: {{.vendor_name}}",
		"Vendor DPA Approved\n\nVendor: {{.vendor_name}}\nDPA Signed: {{.dpa_signed_on}}\nValid Until: {{.dpa_valid_till}}\nRisk Level: {{.risk_level}}\n\nThe vendor can now access data according to configured permissions.\n"),
	EventVendorRejected: mustMessage(EventVendorRejected,
		"Vendor Rejected: {{.vendor_name}}",
		"Vendor DPA Rejected\n\nVendor: {{.vendor_name}}\nReason: {{.rejection_reason}}\nRejected By: {{.rejected_by}}\n\nThe vendor will need to resubmit their DPA with corrections.\n"),
	EventDPAUploaded: mustMessage(EventDPAUploaded,
		"DPA Document Uploaded: {{.vendor_name}}",
		"DPA Document Uploaded\n\nVendor: {{.vendor_name}}\nUploaded By: {{.uploaded_by}}\nFile Size: {{.file_size}}\n\nThe document is waiting for review.\n"),
	EventDPAExpiring: mustMessage(EventDPAExpiring,
		"DPA Expiring Soon: {{.vendor_name}}",
		"DPA Expiry Warning\n\nVendor: {{.vendor_name}}\nValid Until: {{.dpa_valid_till}}\nDays Remaining: {{.days_remaining}}\n\nRenew the Data Processing Agreement before it lapses.\n"),
	EventDPAExpired: mustMessage(EventDPAExpired,
		"DPA Expired: {{.vendor_name}}",
		"DPA Expired\n\nVendor: {{.vendor_name}}\nExpired On: {{.dpa_valid_till}}\n\nData access for this vendor is now denied until a new DPA is approved.\n"),
	EventBulkActionCompleted: mustMessage(EventBulkActionCompleted,
		"Bulk vendor action completed: {{.action}}",
		"Bulk Action Completed\n\nAction: {{.action}}\nVendors processed: {{.processed}}\nFailed: {{.failed}}\nPerformed by: {{.actor}}\n"),
}

// Render produces the subject and plain-text body for an event.
func Render(event EventType, data map[string]any) (string, string, error) {
	msg, ok := messages[event]
	if !ok {
		return "", "", fmt.Errorf("unknown email event %q", event)
	}
	var subject, body bytes.Buffer
	if err := msg.subject.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := msg.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}
