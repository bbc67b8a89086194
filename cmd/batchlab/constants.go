package batchlab

const (
	rootCommandUse   = "batchlab"
	rootCommandShort = "Prepare, execute and flatten LLM batch experiments"

	prepareCommandUse   = "prepare <experiment|all|failed|status> <path>"
	prepareCommandShort = "Render dataset rows and prompts into batch request files"
	executeCommandUse   = "execute <experiment|all|failed|status|remain> <path>"
	executeCommandShort = "Submit batch files, poll the remote batches and download results"
	resultsCommandUse   = "results <experiment|all|failed|status> <path>"
	resultsCommandShort = "Join downloaded results back to dataset rows into spreadsheets"

	commandArgumentCount = 2

	selectorRemain = "remain"
	selectorStatus = "status"

	pollIntervalFlagName  = "poll-interval"
	pollIntervalFlagUsage = "Delay between remote batch status checks"

	workspaceMissingErrorFormat = "experiment path does not exist: %s"
)
