package domain

import (
	"github.com/warungdigital/leadbot-backend/internal/domain/jobs"
	"github.com/warungdigital/leadbot-backend/internal/domain/lead"
)

type Lead = lead.Lead
type LeadInteraction = lead.LeadInteraction
type LeadFormData = lead.LeadFormData
type MessageTemplate = lead.MessageTemplate
type JobRun = jobs.JobRun

const (
	TransportWhatsApp = lead.TransportWhatsApp
	TransportTelegram = lead.TransportTelegram

	DirectionIn  = lead.DirectionIn
	DirectionOut = lead.DirectionOut

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed

	QueueSpreadsheetSync = jobs.QueueSpreadsheetSync
	QueueOperatorNotify  = jobs.QueueOperatorNotify
)
