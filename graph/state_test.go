package graph

import "testing"

func TestAccessIsWrite(t *testing.T) {
	tests := []struct {
		name   string
		access Access
		want   bool
	}{
		{"none", AccessNone, false},
		{"shader read", AccessShaderRead, false},
		{"shader write", AccessShaderWrite, true},
		{"transfer read|write", AccessTransferRead | AccessTransferWrite, true},
		{"memory read", AccessMemoryRead, false},
		{"memory write", AccessMemoryWrite, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.access.IsWrite(); got != tt.want {
				t.Errorf("IsWrite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccessWriteBits(t *testing.T) {
	a := AccessShaderRead | AccessShaderWrite | AccessUniformRead
	if got := a.WriteBits(); got != AccessShaderWrite {
		t.Errorf("WriteBits() = %v, want SHADER_WRITE", got)
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{StageNone.String(), "NONE"},
		{(StageVertexShader | StageFragmentShader).String(), "VERTEX_SHADER|FRAGMENT_SHADER"},
		{AccessTransferWrite.String(), "TRANSFER_WRITE"},
		{LayoutPresent.String(), "PRESENT"},
		{Layout(200).String(), "Layout(200)"},
		{ImagePresent.String(), "PRESENT BOTTOM_OF_PIPE/NONE"},
		{BufferTransferDst.String(), "TRANSFER/TRANSFER_WRITE"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestCoverage(t *testing.T) {
	if !StageAllCommands.covers(StageFragmentShader) {
		t.Error("ALL_COMMANDS should cover every stage")
	}
	if StageComputeShader.covers(StageFragmentShader) {
		t.Error("COMPUTE_SHADER should not cover FRAGMENT_SHADER")
	}
	if !AccessMemoryRead.covers(AccessShaderRead | AccessUniformRead) {
		t.Error("MEMORY_READ should cover every read")
	}
	if AccessMemoryRead.covers(AccessShaderWrite) {
		t.Error("MEMORY_READ should not cover writes")
	}
}

func TestPredefinedStatesWriteFlags(t *testing.T) {
	writes := []ImageState{ImageColorAttachmentWrite, ImageDepthAttachmentWrite, ImageStorageWriteCompute, ImageTransferDst, ImageGeneral}
	for _, s := range writes {
		if !s.IsWrite() {
			t.Errorf("%v should be a write state", s)
		}
	}
	reads := []ImageState{ImageUndefined, ImageShaderReadFragment, ImageTransferSrc, ImagePresent, ImageDepthReadOnly}
	for _, s := range reads {
		if s.IsWrite() {
			t.Errorf("%v should not be a write state", s)
		}
	}
	if BufferVertex.IsWrite() || !BufferStorageReadWriteCompute.IsWrite() {
		t.Error("buffer state write flags wrong")
	}
}
