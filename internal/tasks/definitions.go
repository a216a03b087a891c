package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	// Register settlement tasks
	RegisterHandler(RunPayoutSweepTask.TaskID(), RunPayoutSweepTask.HandleExecution)
	RegisterHandler(RunScheduledPayoutsTask.TaskID(), RunScheduledPayoutsTask.HandleExecution)
	RegisterHandler(VerifyLedgersTask.TaskID(), VerifyLedgersTask.HandleExecution)

	// Register reconciliation tasks
	RegisterHandler(ReconcilePaymentsTask.TaskID(), ReconcilePaymentsTask.HandleExecution)
	RegisterHandler(ReconcilePayoutsTask.TaskID(), ReconcilePayoutsTask.HandleExecution)
}
