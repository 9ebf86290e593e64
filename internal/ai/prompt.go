package ai

// BuildSystemPrompt appends recent channel conversation to the persona so
// the model can pick up the surrounding context.
func BuildSystemPrompt(persona, channelContext string) string {
	if channelContext == "" {
		return persona
	}

	return persona + `

Below is what was recently said in this channel. Use it as background when answering.
Do not quote or mention the channel conversation directly; just answer as someone who already knows the context.

[Recent channel conversation]
` + channelContext
}
