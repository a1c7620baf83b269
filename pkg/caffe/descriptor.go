// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package caffe

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// The subset of caffe.proto needed to export a network, declared as a descriptor so that both
// text (.prototxt) and binary (.caffemodel) files can be decoded with dynamicpb.
//
// Field names and numbers must match caffe.proto: everything not declared here is skipped
// when decoding.

type fieldType = descriptorpb.FieldDescriptorProto_Type

const (
	tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
	tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
	tUint32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	tInt64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
	tFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	tDouble  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
	tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
)

type fieldOpt func(f *descriptorpb.FieldDescriptorProto)

func repeated(f *descriptorpb.FieldDescriptorProto) {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
}

func packed(f *descriptorpb.FieldDescriptorProto) {
	repeated(f)
	f.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(true)}
}

func withDefault(value string) fieldOpt {
	return func(f *descriptorpb.FieldDescriptorProto) { f.DefaultValue = proto.String(value) }
}

func ofType(typeName string) fieldOpt {
	return func(f *descriptorpb.FieldDescriptorProto) { f.TypeName = proto.String(".caffe." + typeName) }
}

func field(name string, number int32, typ fieldType, opts ...fieldOpt) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Type:   typ.Enum(),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for number, value := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(value),
			Number: proto.Int32(int32(number)),
		})
	}
	return e
}

func caffeFileDescriptor() *descriptorpb.FileDescriptorProto {
	pooling := message("PoolingParameter",
		field("pool", 1, tEnum, ofType("PoolingParameter.PoolMethod"), withDefault("MAX")),
		field("kernel_size", 2, tUint32),
		field("stride", 3, tUint32, withDefault("1")),
		field("pad", 4, tUint32, withDefault("0")),
		field("kernel_h", 5, tUint32),
		field("kernel_w", 6, tUint32),
		field("stride_h", 7, tUint32),
		field("stride_w", 8, tUint32),
		field("pad_h", 9, tUint32, withDefault("0")),
		field("pad_w", 10, tUint32, withDefault("0")),
		field("global_pooling", 12, tBool, withDefault("false")),
	)
	pooling.EnumType = []*descriptorpb.EnumDescriptorProto{enum("PoolMethod", "MAX", "AVE", "STOCHASTIC")}

	eltwise := message("EltwiseParameter",
		field("operation", 1, tEnum, ofType("EltwiseParameter.EltwiseOp"), withDefault("SUM")),
		field("coeff", 2, tFloat, repeated),
	)
	eltwise.EnumType = []*descriptorpb.EnumDescriptorProto{enum("EltwiseOp", "PROD", "SUM", "MAX")}

	return &descriptorpb.FileDescriptorProto{
		Name:     proto.String("caffe_subset.proto"),
		Package:  proto.String("caffe"),
		Syntax:   proto.String("proto2"),
		EnumType: []*descriptorpb.EnumDescriptorProto{enum("Phase", "TRAIN", "TEST")},
		MessageType: []*descriptorpb.DescriptorProto{
			message("BlobShape",
				field("dim", 1, tInt64, packed),
			),
			message("BlobProto",
				field("num", 1, tInt32, withDefault("0")),
				field("channels", 2, tInt32, withDefault("0")),
				field("height", 3, tInt32, withDefault("0")),
				field("width", 4, tInt32, withDefault("0")),
				field("data", 5, tFloat, packed),
				field("shape", 7, tMessage, ofType("BlobShape")),
				field("double_data", 8, tDouble, packed),
			),
			message("NetStateRule",
				field("phase", 1, tEnum, ofType("Phase")),
				field("min_level", 2, tInt32),
				field("max_level", 3, tInt32),
				field("stage", 4, tString, repeated),
				field("not_stage", 5, tString, repeated),
			),
			message("ConvolutionParameter",
				field("num_output", 1, tUint32),
				field("bias_term", 2, tBool, withDefault("true")),
				field("pad", 3, tUint32, repeated),
				field("kernel_size", 4, tUint32, repeated),
				field("group", 5, tUint32, withDefault("1")),
				field("stride", 6, tUint32, repeated),
				field("pad_h", 9, tUint32, withDefault("0")),
				field("pad_w", 10, tUint32, withDefault("0")),
				field("kernel_h", 11, tUint32),
				field("kernel_w", 12, tUint32),
				field("stride_h", 13, tUint32),
				field("stride_w", 14, tUint32),
			),
			pooling,
			message("InnerProductParameter",
				field("num_output", 1, tUint32),
				field("bias_term", 2, tBool, withDefault("true")),
				field("axis", 5, tInt32, withDefault("1")),
				field("transpose", 6, tBool, withDefault("false")),
			),
			message("SliceParameter",
				field("slice_dim", 1, tUint32, withDefault("1")),
				field("slice_point", 2, tUint32, repeated),
				field("axis", 3, tInt32, withDefault("1")),
			),
			eltwise,
			message("InputParameter",
				field("shape", 1, tMessage, ofType("BlobShape"), repeated),
			),
			message("LayerParameter",
				field("name", 1, tString),
				field("type", 2, tString),
				field("bottom", 3, tString, repeated),
				field("top", 4, tString, repeated),
				field("blobs", 7, tMessage, ofType("BlobProto"), repeated),
				field("include", 8, tMessage, ofType("NetStateRule"), repeated),
				field("exclude", 9, tMessage, ofType("NetStateRule"), repeated),
				field("phase", 10, tEnum, ofType("Phase")),
				field("convolution_param", 106, tMessage, ofType("ConvolutionParameter")),
				field("eltwise_param", 110, tMessage, ofType("EltwiseParameter")),
				field("inner_product_param", 117, tMessage, ofType("InnerProductParameter")),
				field("pooling_param", 121, tMessage, ofType("PoolingParameter")),
				field("slice_param", 126, tMessage, ofType("SliceParameter")),
				field("input_param", 143, tMessage, ofType("InputParameter")),
			),
			// Only what's needed to read weights from files written with the legacy layer definitions.
			message("V1LayerParameter",
				field("bottom", 2, tString, repeated),
				field("top", 3, tString, repeated),
				field("name", 4, tString),
				field("blobs", 6, tMessage, ofType("BlobProto"), repeated),
			),
			message("NetParameter",
				field("name", 1, tString),
				field("layers", 2, tMessage, ofType("V1LayerParameter"), repeated),
				field("input", 3, tString, repeated),
				field("input_dim", 4, tInt32, repeated),
				field("input_shape", 8, tMessage, ofType("BlobShape"), repeated),
				field("layer", 100, tMessage, ofType("LayerParameter"), repeated),
			),
		},
	}
}

// netParameterDesc is the descriptor of caffe.NetParameter, built at package initialization.
var netParameterDesc = buildNetParameterDesc()

func buildNetParameterDesc() protoreflect.MessageDescriptor {
	file, err := protodesc.NewFile(caffeFileDescriptor(), nil)
	if err != nil {
		panic(err)
	}
	return file.Messages().ByName("NetParameter")
}
