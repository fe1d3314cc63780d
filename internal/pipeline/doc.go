// Package pipeline coordinates the document stages. A manager runs one lane
// per concern: inbox watching, extraction polling, classification and
// notification bus subscriptions, and a reclaimer that rolls abandoned
// processing records back. Every stage error is handled inside the lane, so
// one poisoned document never stops the others.
package pipeline
