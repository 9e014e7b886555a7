package voicebot

import "fmt"

const (
	commandStart = "kikitori"
	commandStop  = "kikitori-stop"

	slashCommandStartDescription = "Start transcribing the voice channel you are in."
	slashCommandStopDescription  = "Stop transcribing the voice channel you are in."

	messageEphemeralWrongGuild        = ":warning: **This command is not available in this server.**"
	messageEphemeralUnknownCommand    = ":warning: **Unknown command.**"
	messageEphemeralVoiceLookupFailed = ":warning: **Could not check your voice channel.**"
	messageEphemeralJoinVCFirst       = ":warning: **Join a voice channel first.**"
	messageEphemeralAlreadyRunning    = ":warning: **This voice channel is already being transcribed.**"
	messageEphemeralStartFailed       = ":warning: **Failed to start transcription.**"
	messageEphemeralNotRunning        = ":warning: **This voice channel is not being transcribed.**"

	messageStartChannelTitle = ":microphone2: **Transcription started.**"
	messageStartChannelHint  = "-# Use /kikitori-stop to stop."

	messageStopChannelTitle = ":pause_button:  **Transcription stopped.**"
	messageStopRestart      = "Use /kikitori to start."
	messageStopRestartAgain = "Use /kikitori to start again."

	messageAttachmentTitleFormat = ":page_facing_up:  **Transcript of %s / %s**"

	messageStartEphemeralFormat = ":microphone2: <#%s> **is now being transcribed.**\n-# Transcripts are posted to the voice channel chat.\n-# Use /kikitori-stop to stop."
	messageStopEphemeralFormat  = ":pause_button:  <#%s> **is no longer being transcribed.**\n-# Use /kikitori to start."
)

const (
	stopReasonManualSlash      = "manual_slash"
	stopReasonParticipantsLeft = "participants_left"
	stopReasonBotRemoved       = "bot_removed"
	stopReasonServerClosed     = "server_closed"
	stopReasonMaxDuration      = "max_duration"
	stopReasonUnknownError     = "unknown_error"
)

func startEphemeralMessage(channelID string) string {
	return fmt.Sprintf(messageStartEphemeralFormat, channelID)
}

func stopEphemeralMessage(channelID string) string {
	return fmt.Sprintf(messageStopEphemeralFormat, channelID)
}

func startChannelMessage() string {
	return messageStartChannelTitle + "\n" + messageStartChannelHint
}

func stopChannelMessage(reason string) string {
	restart := messageStopRestart
	if stopReasonNeedsRestartAgain(reason) {
		restart = messageStopRestartAgain
	}
	return messageStopChannelTitle + "\n" + stopReasonDetail(reason) + "\n-# " + restart
}

func attachmentMessage(guildName, channelName string) string {
	return fmt.Sprintf(messageAttachmentTitleFormat, guildName, channelName)
}

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonMaxDuration:
		return "The maximum transcription time was reached."
	case stopReasonManualSlash:
		return "A participant ran the stop command."
	case stopReasonParticipantsLeft:
		return "Everyone left the voice channel."
	case stopReasonBotRemoved:
		return "The transcription bot was disconnected."
	case stopReasonServerClosed:
		return "The transcription server shut down."
	default:
		return "An unknown error occurred."
	}
}

func stopReasonNeedsRestartAgain(reason string) bool {
	switch reason {
	case stopReasonMaxDuration, stopReasonServerClosed, stopReasonUnknownError:
		return true
	default:
		return false
	}
}
