package models

// ArticleAction names an operation that moves an article between states.
type ArticleAction string

const (
	ActionSubmit         ArticleAction = "SUBMIT"
	ActionApprove        ArticleAction = "APPROVE"
	ActionReject         ArticleAction = "REJECT"
	ActionReopen         ArticleAction = "REOPEN"
	ActionResendApproval ArticleAction = "RESEND_APPROVAL"
	ActionSubmitPayment  ArticleAction = "SUBMIT_PAYMENT"
	ActionPublish        ArticleAction = "PUBLISH"
	ActionRejectPayment  ArticleAction = "REJECT_PAYMENT"
	ActionUnpublish      ArticleAction = "UNPUBLISH"
)

// Transition is one row of the lifecycle table.
type Transition struct {
	Action ArticleAction
	From   []LifecycleState
	To     LifecycleState
}

// Allows reports whether the transition may start from s.
func (t Transition) Allows(s LifecycleState) bool {
	for _, from := range t.From {
		if from == s {
			return true
		}
	}
	return false
}

// Transitions is the complete lifecycle table. Anything absent is illegal.
// Approve from Rejected is the reopen-then-approve path and counts as a fresh approval.
var Transitions = map[ArticleAction]Transition{
	ActionSubmit:         {ActionSubmit, []LifecycleState{StateDraft}, StatePendingReview},
	ActionApprove:        {ActionApprove, []LifecycleState{StatePendingReview, StateRejected}, StateApproved},
	ActionReject:         {ActionReject, []LifecycleState{StatePendingReview}, StateRejected},
	ActionReopen:         {ActionReopen, []LifecycleState{StateRejected}, StatePendingReview},
	ActionResendApproval: {ActionResendApproval, []LifecycleState{StateApproved}, StateApproved},
	ActionSubmitPayment:  {ActionSubmitPayment, []LifecycleState{StateApproved, StatePaymentRejected}, StatePaymentSubmitted},
	ActionPublish:        {ActionPublish, []LifecycleState{StatePaymentSubmitted}, StatePublished},
	ActionRejectPayment:  {ActionRejectPayment, []LifecycleState{StatePaymentSubmitted}, StatePaymentRejected},
	ActionUnpublish:      {ActionUnpublish, []LifecycleState{StatePublished}, StateUnpublished},
}
