package rule

// synthesizeThresholdScript generates the Lua body for a threshold rule
// (rule engine side) from its four threshold variables
// (low_critical, low_warning, high_warning, high_critical).
func synthesizeThresholdScript() string {
	return `function main(value)
  if value < low_critical then
    return LOW_CRITICAL
  end
  if value < low_warning then
    return LOW_WARNING
  end
  if value > high_critical then
    return HIGH_CRITICAL
  end
  if value > high_warning then
    return HIGH_WARNING
  end
  return OK
end
`
}
